package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codewitness/codewitness/internal/async"
	"github.com/codewitness/codewitness/internal/embed"
	"github.com/codewitness/codewitness/internal/indexer"
	"github.com/codewitness/codewitness/internal/search"
	"github.com/codewitness/codewitness/internal/store"
	"github.com/codewitness/codewitness/pkg/version"
)

// Server is the MCP tool dispatch surface for codewitness. It bridges the
// closed tool set to the store/search/indexer/embed/async packages.
type Server struct {
	mcp      *mcp.Server
	store    *store.Store
	search   *search.Engine
	embedder *embed.Pool
	indexer  *indexer.Indexer
	runner   *async.Runner
	roots    []string
	logger   *slog.Logger
}

// New constructs a Server wired to the given components. embedder may be
// uninitialized (missing model files); semantic search tools then return
// empty results rather than erroring.
func New(st *store.Store, eng *search.Engine, embedder *embed.Pool, ix *indexer.Indexer, runner *async.Runner, roots []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:    st,
		search:   eng,
		embedder: embedder,
		indexer:  ix,
		runner:   runner,
		roots:    roots,
		logger:   logger,
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "codewitness", Version: version.Version}, nil)
	s.registerTools()
	return s
}

// MCPServer returns the underlying SDK server, for transport wiring.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Serve runs the server over the given transport ("stdio" is the only one
// wired at the core boundary; HTTP/SSE is layered on by cmd/codewitness).
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_code",
		Description: "Semantic search over indexed source code chunks. Returns the most similar chunks by embedding distance, optionally filtered by language.",
	}, s.handleSearchCode)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_lessons",
		Description: "Semantic search over recorded lessons, ordered by ascending distance.",
	}, s.handleSearchLessons)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_lessons",
		Description: "List recorded lessons, optionally filtered by severity or repo, newest first.",
	}, s.handleListLessons)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "add_lesson",
		Description: "Record a new lesson. Its embedding is computed asynchronously; it may not appear in search_lessons immediately.",
	}, s.handleAddLesson)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_lesson",
		Description: "Delete a lesson by id.",
	}, s.handleDeleteLesson)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "add_checkpoint",
		Description: "Record a durable checkpoint of an agent's in-progress work. Its embedding is computed asynchronously.",
	}, s.handleAddCheckpoint)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_recent_checkpoints",
		Description: "Fetch an agent's most recent checkpoints, newest first.",
	}, s.handleGetRecentCheckpoints)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_checkpoints",
		Description: "Semantic search over checkpoints, optionally filtered by agent.",
	}, s.handleSearchCheckpoints)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_agent_status",
		Description: "Get an agent's current status, creating an idle row if none exists yet.",
	}, s.handleGetAgentStatus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "trigger_reindex",
		Description: "Force a full reindex of a path (or all watched roots if omitted).",
	}, s.handleTriggerReindex)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_status",
		Description: "Report overall server status: version and row counts for chunks, lessons, and tracked files.",
	}, s.handleGetStatus)

	s.logger.Info("MCP tools registered", slog.Int("count", 11))
}

func (s *Server) handleSearchCode(ctx context.Context, _ *mcp.CallToolRequest, input SearchCodeInput) (*mcp.CallToolResult, SearchCodeOutput, error) {
	if input.Query == "" {
		return nil, SearchCodeOutput{}, NewInvalidParamsError("query is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}
	if s.embedder == nil || !s.embedder.Initialized() {
		return nil, SearchCodeOutput{Query: input.Query, Results: []SearchCodeResult{}}, nil
	}
	qvec, err := s.embedder.Embed(ctx, input.Query)
	if err != nil {
		return nil, SearchCodeOutput{}, MapError(err)
	}
	matches, err := s.search.SearchChunks(ctx, qvec, limit, store.ChunkFilter{Language: input.Language})
	if err != nil {
		return nil, SearchCodeOutput{}, MapError(err)
	}
	out := SearchCodeOutput{Query: input.Query, Results: make([]SearchCodeResult, 0, len(matches))}
	for _, m := range matches {
		out.Results = append(out.Results, SearchCodeResult{
			FilePath:   m.Record.FilePath,
			ChunkIndex: m.Record.ChunkIndex,
			StartLine:  m.Record.StartLine,
			EndLine:    m.Record.EndLine,
			Content:    m.Record.Content,
			Language:   m.Record.Language,
			Score:      m.Score,
			Distance:   m.Distance,
		})
	}
	out.Count = len(out.Results)
	return nil, out, nil
}

func (s *Server) handleSearchLessons(ctx context.Context, _ *mcp.CallToolRequest, input SearchLessonsInput) (*mcp.CallToolResult, SearchLessonsOutput, error) {
	if input.Query == "" {
		return nil, SearchLessonsOutput{}, NewInvalidParamsError("query is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 5
	}
	if s.embedder == nil || !s.embedder.Initialized() {
		return nil, SearchLessonsOutput{Lessons: []LessonRecord{}}, nil
	}
	qvec, err := s.embedder.Embed(ctx, input.Query)
	if err != nil {
		return nil, SearchLessonsOutput{}, MapError(err)
	}
	matches, err := s.search.SearchLessons(ctx, qvec, limit, store.LessonFilter{})
	if err != nil {
		return nil, SearchLessonsOutput{}, MapError(err)
	}
	out := SearchLessonsOutput{Lessons: make([]LessonRecord, 0, len(matches))}
	for _, m := range matches {
		r := toLessonRecord(m.Record)
		r.Score, r.Distance = m.Score, m.Distance
		out.Lessons = append(out.Lessons, r)
	}
	return nil, out, nil
}

func (s *Server) handleListLessons(ctx context.Context, _ *mcp.CallToolRequest, input ListLessonsInput) (*mcp.CallToolResult, ListLessonsOutput, error) {
	lessons, err := s.store.ListLessons(ctx, store.LessonFilter{
		Severity: store.Severity(input.Severity),
		Repo:     input.Repo,
		Limit:    input.Limit,
	})
	if err != nil {
		return nil, ListLessonsOutput{}, MapError(err)
	}
	out := ListLessonsOutput{Lessons: make([]LessonRecord, 0, len(lessons))}
	for _, l := range lessons {
		out.Lessons = append(out.Lessons, toLessonRecord(l))
	}
	out.Count = len(out.Lessons)
	return nil, out, nil
}

func (s *Server) handleAddLesson(ctx context.Context, _ *mcp.CallToolRequest, input AddLessonInput) (*mcp.CallToolResult, IDMessageOutput, error) {
	if input.Title == "" || input.Content == "" {
		return nil, IDMessageOutput{}, NewInvalidParamsError("title and content are required")
	}
	if input.Tags == nil {
		return nil, IDMessageOutput{}, NewInvalidParamsError("tags is required")
	}
	severity := store.Severity(input.Severity)
	if severity == "" {
		severity = store.SeverityInfo
	}
	id, err := s.store.AddLesson(ctx, store.Lesson{
		Title:    input.Title,
		Content:  input.Content,
		Tags:     input.Tags,
		Severity: severity,
		Repo:     input.Repo,
	})
	if err != nil {
		return nil, IDMessageOutput{}, MapError(err)
	}
	if s.runner != nil {
		s.runner.ScheduleLessonEmbedding(s.store, s.embedder, id, input.Title, input.Content)
	}
	return nil, IDMessageOutput{ID: id, Message: "lesson added"}, nil
}

func (s *Server) handleDeleteLesson(ctx context.Context, _ *mcp.CallToolRequest, input DeleteLessonInput) (*mcp.CallToolResult, IDMessageOutput, error) {
	if input.ID == "" {
		return nil, IDMessageOutput{}, NewInvalidParamsError("id is required")
	}
	if err := s.store.DeleteLesson(ctx, input.ID); err != nil {
		return nil, IDMessageOutput{}, MapError(err)
	}
	return nil, IDMessageOutput{ID: input.ID, Message: "lesson deleted"}, nil
}

func (s *Server) handleAddCheckpoint(ctx context.Context, _ *mcp.CallToolRequest, input AddCheckpointInput) (*mcp.CallToolResult, IDMessageOutput, error) {
	if input.Agent == "" || input.WorkingOn == "" || input.State == "" {
		return nil, IDMessageOutput{}, NewInvalidParamsError("agent, working_on, and state are required")
	}
	id, err := s.store.AddCheckpoint(ctx, store.Checkpoint{
		Agent:     input.Agent,
		Repo:      input.Repo,
		SessionID: input.SessionID,
		WorkingOn: input.WorkingOn,
		State:     input.State,
	})
	if err != nil {
		return nil, IDMessageOutput{}, MapError(err)
	}
	if s.runner != nil {
		s.runner.ScheduleCheckpointEmbedding(s.store, s.embedder, id, input.WorkingOn)
	}
	return nil, IDMessageOutput{ID: id, Message: "checkpoint added"}, nil
}

func (s *Server) handleGetRecentCheckpoints(ctx context.Context, _ *mcp.CallToolRequest, input GetRecentCheckpointsInput) (*mcp.CallToolResult, GetRecentCheckpointsOutput, error) {
	if input.Agent == "" {
		return nil, GetRecentCheckpointsOutput{}, NewInvalidParamsError("agent is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 5
	}
	checkpoints, err := s.store.GetRecentCheckpoints(ctx, store.CheckpointFilter{Agent: input.Agent, Limit: limit})
	if err != nil {
		return nil, GetRecentCheckpointsOutput{}, MapError(err)
	}
	out := GetRecentCheckpointsOutput{Checkpoints: make([]CheckpointRecord, 0, len(checkpoints))}
	for _, c := range checkpoints {
		out.Checkpoints = append(out.Checkpoints, toCheckpointRecord(c))
	}
	return nil, out, nil
}

func (s *Server) handleSearchCheckpoints(ctx context.Context, _ *mcp.CallToolRequest, input SearchCheckpointsInput) (*mcp.CallToolResult, SearchCheckpointsOutput, error) {
	if input.Query == "" {
		return nil, SearchCheckpointsOutput{}, NewInvalidParamsError("query is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 5
	}
	if s.embedder == nil || !s.embedder.Initialized() {
		return nil, SearchCheckpointsOutput{Query: input.Query, Checkpoints: []CheckpointRecord{}}, nil
	}
	qvec, err := s.embedder.Embed(ctx, input.Query)
	if err != nil {
		return nil, SearchCheckpointsOutput{}, MapError(err)
	}
	matches, err := s.search.SearchCheckpoints(ctx, qvec, limit, store.CheckpointFilter{Agent: input.Agent})
	if err != nil {
		return nil, SearchCheckpointsOutput{}, MapError(err)
	}
	out := SearchCheckpointsOutput{Query: input.Query, Checkpoints: make([]CheckpointRecord, 0, len(matches))}
	for _, m := range matches {
		r := toCheckpointRecord(m.Record)
		r.Score, r.Distance = m.Score, m.Distance
		out.Checkpoints = append(out.Checkpoints, r)
	}
	out.Count = len(out.Checkpoints)
	return nil, out, nil
}

func (s *Server) handleGetAgentStatus(ctx context.Context, _ *mcp.CallToolRequest, input GetAgentStatusInput) (*mcp.CallToolResult, GetAgentStatusOutput, error) {
	if input.Agent == "" {
		return nil, GetAgentStatusOutput{}, NewInvalidParamsError("agent is required")
	}
	status, err := s.store.GetOrCreateAgentStatus(ctx, input.Agent)
	if err != nil {
		return nil, GetAgentStatusOutput{}, MapError(err)
	}
	count, err := s.store.CountCheckpoints(ctx, input.Agent)
	if err != nil {
		return nil, GetAgentStatusOutput{}, MapError(err)
	}
	return nil, GetAgentStatusOutput{
		Agent:           status.Agent,
		Status:          string(status.Status),
		CurrentTask:     status.CurrentTask,
		LastUpdated:     status.LastUpdated,
		CheckpointCount: count,
	}, nil
}

func (s *Server) handleTriggerReindex(ctx context.Context, _ *mcp.CallToolRequest, input TriggerReindexInput) (*mcp.CallToolResult, TriggerReindexOutput, error) {
	if s.indexer == nil {
		return nil, TriggerReindexOutput{}, NewInvalidParamsError("indexer is not configured")
	}
	targets := s.roots
	if input.Path != "" {
		targets = []string{input.Path}
	}
	if s.runner != nil {
		for _, root := range targets {
			root := root
			s.runner.Go("reindex", func(ctx context.Context) error {
				_, err := s.indexer.ReindexAll(ctx, root)
				return err
			})
		}
	}
	return nil, TriggerReindexOutput{
		Status:  "reindex_scheduled",
		Path:    input.Path,
		Message: fmt.Sprintf("reindex scheduled for %d root(s)", len(targets)),
	}, nil
}

func (s *Server) handleGetStatus(ctx context.Context, _ *mcp.CallToolRequest, _ GetStatusInput) (*mcp.CallToolResult, GetStatusOutput, error) {
	chunks, err := s.store.CountChunks(ctx)
	if err != nil {
		return nil, GetStatusOutput{}, MapError(err)
	}
	files, err := s.store.CountTrackedFiles(ctx)
	if err != nil {
		return nil, GetStatusOutput{}, MapError(err)
	}
	lessons, err := s.store.CountLessons(ctx)
	if err != nil {
		return nil, GetStatusOutput{}, MapError(err)
	}
	return nil, GetStatusOutput{
		Status:  "ok",
		Version: version.Version,
		Stats:   StatusStats{Chunks: chunks, Lessons: lessons, Files: files},
	}, nil
}

func toLessonRecord(l store.Lesson) LessonRecord {
	return LessonRecord{
		ID:        l.ID,
		Title:     l.Title,
		Content:   l.Content,
		Tags:      l.Tags,
		Severity:  string(l.Severity),
		Agent:     l.Agent,
		Repo:      l.Repo,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

func toCheckpointRecord(c store.Checkpoint) CheckpointRecord {
	return CheckpointRecord{
		ID:        c.ID,
		Agent:     c.Agent,
		Repo:      c.Repo,
		SessionID: c.SessionID,
		WorkingOn: c.WorkingOn,
		State:     c.State,
		CreatedAt: c.CreatedAt,
	}
}
