package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alfredjoe/Talktrace-backend/internal/logger"
	"github.com/alfredjoe/Talktrace-backend/pkg/crypto"
	"github.com/alfredjoe/Talktrace-backend/pkg/engine"
)

// Envelope header names. The client supplies its RSA public key and
// receives the RSA-encrypted session key; the body is AES-256-CBC
// ciphertext under that session key. Cleartext never crosses the wire.
const (
	headerPublicKey    = "X-Public-Key"
	headerEncryptedKey = "X-Encrypted-Key"
)

// Audio streams the meeting's encrypted audio under a per-request
// session envelope.
// GET /api/audio/{id}
func (h *Handler) Audio(w http.ResponseWriter, r *http.Request) {
	m := h.loadOwnedMeeting(w, r)
	if m == nil {
		return
	}
	h.streamArtifact(w, r, m.ID, "audio", "audio/mpeg")
}

// Data streams one JSON artifact (transcript or summary) under the
// session envelope.
// GET /api/data/{id}/{kind}
func (h *Handler) Data(w http.ResponseWriter, r *http.Request) {
	m := h.loadOwnedMeeting(w, r)
	if m == nil {
		return
	}

	kind := chi.URLParam(r, "kind")
	if kind != "transcript" && kind != "summary" {
		BadRequest(w, "artifact kind must be transcript or summary")
		return
	}
	h.streamArtifact(w, r, m.ID, kind, "application/json")
}

// DataCombined serves transcript and summary as one JSON document under
// the session envelope.
// GET /api/data/{id}
func (h *Handler) DataCombined(w http.ResponseWriter, r *http.Request) {
	m := h.loadOwnedMeeting(w, r)
	if m == nil {
		return
	}

	transcript, err := h.readArtifactJSON(r, m.ID, "transcript")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	summary, err := h.readArtifactJSON(r, m.ID, "summary")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var t engine.Transcript
	var s engine.Summary
	if err := json.Unmarshal(transcript, &t); err != nil {
		InternalServerError(w, "malformed transcript artifact")
		return
	}
	if err := json.Unmarshal(summary, &s); err != nil {
		InternalServerError(w, "malformed summary artifact")
		return
	}

	combined, err := json.Marshal(map[string]any{
		"transcript": t.Text,
		"segments":   t.Segments,
		"summary":    s.Summary,
		"actions":    s.Actions,
	})
	if err != nil {
		InternalServerError(w, err.Error())
		return
	}

	headerB64, session, err := crypto.BuildSessionEnvelope(r.Header.Get(headerPublicKey))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set(headerEncryptedKey, headerB64)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	enc, err := session.Encrypter(countingWriter{w, h})
	if err != nil {
		logger.Error("failed to initialize session cipher", logger.KeyError, err)
		return
	}
	werr := func() error {
		if _, err := enc.Write(combined); err != nil {
			return err
		}
		return enc.Close()
	}()
	if werr != nil {
		logger.Debug("combined data stream aborted by client",
			logger.KeyMeetingID, m.ID, logger.KeyError, werr)
	}
	h.recordStream("combined", werr)
}

// streamArtifact owns the full envelope-streaming path for one artifact:
// open the cleartext stream, build the session envelope, commit the
// headers, then pump ciphertext. All headers are set before the first
// body byte; past that point an error can only close the connection.
func (h *Handler) streamArtifact(w http.ResponseWriter, r *http.Request, meetingID, kind, contentType string) {
	rc, err := h.pipeline.OpenArtifact(r.Context(), meetingID, kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer rc.Close()

	headerB64, session, err := crypto.BuildSessionEnvelope(r.Header.Get(headerPublicKey))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set(headerEncryptedKey, headerB64)
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)

	enc, err := session.Encrypter(countingWriter{w, h})
	if err != nil {
		logger.Error("failed to initialize session cipher", logger.KeyError, err)
		return
	}

	// A write error here means the client went away; stop reading
	// plaintext promptly and log only.
	if _, err = io.Copy(enc, rc); err != nil {
		logger.Debug("artifact stream aborted by client",
			logger.KeyMeetingID, meetingID, logger.KeyKind, kind, logger.KeyError, err)
	} else if err = enc.Close(); err != nil {
		logger.Debug("artifact stream close failed",
			logger.KeyMeetingID, meetingID, logger.KeyKind, kind, logger.KeyError, err)
	}
	h.recordStream(kind, err)
}

// readArtifactJSON buffers one artifact's cleartext. Only used for the
// combined document; single artifacts stream.
func (h *Handler) readArtifactJSON(r *http.Request, meetingID, kind string) ([]byte, error) {
	rc, err := h.pipeline.OpenArtifact(r.Context(), meetingID, kind)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (h *Handler) recordStream(kind string, err error) {
	if h.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "aborted"
	}
	h.metrics.EnvelopeStreamsTotal.WithLabelValues(kind, outcome).Inc()
}

// countingWriter feeds the streamed ciphertext byte count into metrics.
type countingWriter struct {
	w io.Writer
	h *Handler
}

func (c countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if c.h.metrics != nil && n > 0 {
		c.h.metrics.EnvelopeBytesTotal.Add(float64(n))
	}
	return n, err
}
