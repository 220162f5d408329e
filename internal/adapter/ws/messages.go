package ws

// Worker-to-server message types.
const (
	typeRegister   = "register"
	typeStatus     = "status"
	typeImageChunk = "image_chunk"
	typeImageData  = "image_data"
	typeResult     = "result"
)

// inbound is the envelope for every worker-to-server frame. Fields are
// populated per message type; unknown fields are ignored.
type inbound struct {
	Type        string `json:"type"`
	PageURL     string `json:"page_url"`
	TaskID      string `json:"task_id"`
	Message     string `json:"message"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	Data        string `json:"data"`
	Error       string `json:"error"`
}
