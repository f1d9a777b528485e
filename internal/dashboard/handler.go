// Handler bridges importer activity and the WebSocket server.
package dashboard

import (
	"encoding/json"
	"log"
	"time"
)

// Handler formats import lifecycle events as dashboard messages and
// broadcasts them. It is safe to leave nil-valued inside callers; all
// methods are no-ops on a nil receiver, so wiring a dashboard stays
// optional.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		server: server,
		logger: logger,
	}
}

// OnImportStarted broadcasts that an import began.
func (h *Handler) OnImportStarted(source, tags string) {
	if h == nil {
		return
	}
	h.publish(MessageTypeImportStarted, ImportStartedData{
		Source: source,
		Tags:   tags,
	})
}

// OnImportComplete broadcasts the outcome of a finished import.
func (h *Handler) OnImportComplete(source string, notesAdded int, duration time.Duration, err error) {
	if h == nil {
		return
	}
	data := ImportCompleteData{
		Source:     source,
		NotesAdded: notesAdded,
		Duration:   duration,
	}
	if err != nil {
		data.Error = err.Error()
	}
	h.publish(MessageTypeImportComplete, data)
}

// OnMediaSynced broadcasts the summary of a bulk media pass.
func (h *Handler) OnMediaSynced(copied, renamed, skipped, failed int) {
	if h == nil {
		return
	}
	h.publish(MessageTypeMediaSynced, MediaSyncedData{
		Copied:  copied,
		Renamed: renamed,
		Skipped: skipped,
		Failed:  failed,
	})
}

// PublishStats broadcasts current collection statistics.
func (h *Handler) PublishStats(templates, notes, cards int) {
	if h == nil {
		return
	}
	h.publish(MessageTypeStats, StatsData{
		Templates: templates,
		Notes:     notes,
		Cards:     cards,
	})
}

// publish marshals the data and hands it to the broadcast loop.
func (h *Handler) publish(t MessageType, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s event: %v", t, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      t,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
