package mcp

// SearchCodeInput is the input schema for search_code.
type SearchCodeInput struct {
	Query    string `json:"query" jsonschema:"the semantic code search query"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Language string `json:"language,omitempty" jsonschema:"filter by programming language, e.g. go, python"`
}

// SearchCodeResult is a single chunk match in a search_code response.
type SearchCodeResult struct {
	FilePath   string  `json:"file_path"`
	ChunkIndex int     `json:"chunk_index"`
	StartLine  int     `json:"start_line"`
	EndLine    int     `json:"end_line"`
	Content    string  `json:"content"`
	Language   string  `json:"language,omitempty"`
	Score      float32 `json:"score"`
	Distance   float32 `json:"distance"`
}

// SearchCodeOutput is the output schema for search_code.
type SearchCodeOutput struct {
	Results []SearchCodeResult `json:"results"`
	Query   string             `json:"query"`
	Count   int                `json:"count"`
}

// SearchLessonsInput is the input schema for search_lessons.
type SearchLessonsInput struct {
	Query string `json:"query" jsonschema:"the semantic lesson search query"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 5"`
}

// LessonRecord is the wire shape of a lesson.
type LessonRecord struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	Severity  string   `json:"severity"`
	Agent     string   `json:"agent,omitempty"`
	Repo      string   `json:"repo,omitempty"`
	CreatedAt int64    `json:"created_at"`
	UpdatedAt int64    `json:"updated_at"`
	Score     float32  `json:"score,omitempty"`
	Distance  float32  `json:"distance,omitempty"`
}

// SearchLessonsOutput is the output schema for search_lessons: an array of
// lesson records ordered by ascending distance.
type SearchLessonsOutput struct {
	Lessons []LessonRecord `json:"lessons"`
}

// ListLessonsInput is the input schema for list_lessons.
type ListLessonsInput struct {
	Severity string `json:"severity,omitempty" jsonschema:"filter by severity: critical, warning, info"`
	Repo     string `json:"repo,omitempty" jsonschema:"filter by repository"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 50"`
}

// ListLessonsOutput is the output schema for list_lessons.
type ListLessonsOutput struct {
	Lessons []LessonRecord `json:"lessons"`
	Count   int            `json:"count"`
}

// AddLessonInput is the input schema for add_lesson.
type AddLessonInput struct {
	Title    string   `json:"title" jsonschema:"short lesson title"`
	Content  string   `json:"content" jsonschema:"the lesson body"`
	Tags     []string `json:"tags" jsonschema:"tag set for the lesson"`
	Severity string   `json:"severity,omitempty" jsonschema:"critical, warning, or info; default info"`
	Repo     string   `json:"repo,omitempty" jsonschema:"repository the lesson applies to"`
}

// IDMessageOutput is the shared `{ id, message }` shape add_lesson,
// delete_lesson, and add_checkpoint all return.
type IDMessageOutput struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// DeleteLessonInput is the input schema for delete_lesson.
type DeleteLessonInput struct {
	ID string `json:"id" jsonschema:"the lesson id to delete"`
}

// AddCheckpointInput is the input schema for add_checkpoint.
type AddCheckpointInput struct {
	Agent     string `json:"agent" jsonschema:"the agent authoring this checkpoint"`
	WorkingOn string `json:"working_on" jsonschema:"a short description of current work"`
	State     string `json:"state" jsonschema:"opaque JSON payload describing progress"`
	Repo      string `json:"repo,omitempty" jsonschema:"repository the checkpoint applies to"`
	SessionID string `json:"session_id,omitempty" jsonschema:"session identifier"`
}

// CheckpointRecord is the wire shape of a checkpoint.
type CheckpointRecord struct {
	ID        string  `json:"id"`
	Agent     string  `json:"agent"`
	Repo      string  `json:"repo,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
	WorkingOn string  `json:"working_on"`
	State     string  `json:"state"`
	CreatedAt int64   `json:"created_at"`
	Score     float32 `json:"score,omitempty"`
	Distance  float32 `json:"distance,omitempty"`
}

// GetRecentCheckpointsInput is the input schema for get_recent_checkpoints.
type GetRecentCheckpointsInput struct {
	Agent string `json:"agent" jsonschema:"the agent whose checkpoints to fetch"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 5"`
}

// GetRecentCheckpointsOutput is the output schema for get_recent_checkpoints:
// an array of checkpoint records, newest first.
type GetRecentCheckpointsOutput struct {
	Checkpoints []CheckpointRecord `json:"checkpoints"`
}

// SearchCheckpointsInput is the input schema for search_checkpoints.
type SearchCheckpointsInput struct {
	Query string `json:"query" jsonschema:"the semantic checkpoint search query"`
	Agent string `json:"agent,omitempty" jsonschema:"filter by agent"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 5"`
}

// SearchCheckpointsOutput is the output schema for search_checkpoints.
type SearchCheckpointsOutput struct {
	Checkpoints []CheckpointRecord `json:"checkpoints"`
	Count       int                `json:"count"`
	Query       string             `json:"query"`
}

// GetAgentStatusInput is the input schema for get_agent_status.
type GetAgentStatusInput struct {
	Agent string `json:"agent" jsonschema:"the agent to look up"`
}

// GetAgentStatusOutput is the output schema for get_agent_status.
type GetAgentStatusOutput struct {
	Agent           string `json:"agent"`
	Status          string `json:"status"`
	CurrentTask     string `json:"current_task,omitempty"`
	LastUpdated     int64  `json:"last_updated"`
	CheckpointCount int    `json:"checkpoint_count"`
}

// TriggerReindexInput is the input schema for trigger_reindex.
type TriggerReindexInput struct {
	Path string `json:"path,omitempty" jsonschema:"restrict the reindex to this path; default is all watched roots"`
}

// TriggerReindexOutput is the output schema for trigger_reindex.
type TriggerReindexOutput struct {
	Status  string `json:"status"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// GetStatusInput is the input schema for get_status (no parameters).
type GetStatusInput struct{}

// StatusStats is the `stats` object embedded in get_status's output.
type StatusStats struct {
	Chunks  int `json:"chunks"`
	Lessons int `json:"lessons"`
	Files   int `json:"files"`
}

// GetStatusOutput is the output schema for get_status.
type GetStatusOutput struct {
	Status  string      `json:"status"`
	Version string      `json:"version"`
	Stats   StatusStats `json:"stats"`
}
