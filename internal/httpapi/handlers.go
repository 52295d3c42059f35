// Package httpapi exposes the non-realtime REST surface: health, session
// status, reset, one-shot pose detection, and Prometheus metrics.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/punchcam/backend/internal/broker"
	"github.com/punchcam/backend/internal/classify"
	"github.com/punchcam/backend/internal/session"
	"github.com/punchcam/backend/pkg/metrics"
	"github.com/punchcam/backend/pkg/types"
)

type API struct {
	ctrl       *session.Controller
	broker     *broker.Broker
	classifier *classify.Classifier
	log        *zap.Logger
}

func NewAPI(ctrl *session.Controller, br *broker.Broker, cl *classify.Classifier, log *zap.Logger) *API {
	return &API{ctrl: ctrl, broker: br, classifier: cl, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: message})
}

func (a *API) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	}{Message: "punchcam game API", Status: "running"})
}

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status          string `json:"status"`
		ClassifierReady bool   `json:"classifier_ready"`
	}{Status: "healthy", ClassifierReady: a.classifier.Ready()})
}

// GameStatus reports the session snapshot plus the broker's view of who is
// connected.
func (a *API) GameStatus(w http.ResponseWriter, r *http.Request) {
	snapReply := make(chan types.GameSnapshot, 1)
	a.ctrl.Inbox() <- session.GetSnapshot{Reply: snapReply}

	statsReply := make(chan broker.Stats, 1)
	a.broker.Inbox() <- broker.GetStats{Reply: statsReply}

	writeJSON(w, http.StatusOK, struct {
		Game types.GameSnapshot `json:"game"`
		Sync broker.Stats       `json:"sync"`
	}{Game: <-snapReply, Sync: <-statsReply})
}

func (a *API) ResetGame(w http.ResponseWriter, r *http.Request) {
	reply := make(chan error, 1)
	a.ctrl.Inbox() <- session.Control{Action: types.ActionResetGame, Reply: reply}
	if err := <-reply; err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message string `json:"message"`
	}{Message: "game reset"})
}

// DetectPose classifies a single frame outside any websocket stream. With a
// player_id the candidates also go through the arbiter; without one this is
// a dry run against the static rules only, since one frame carries no
// motion history.
func (a *API) DetectPose(w http.ResponseWriter, r *http.Request) {
	var pd types.PoseData
	if err := json.NewDecoder(r.Body).Decode(&pd); err != nil {
		writeError(w, http.StatusBadRequest, "malformed pose payload")
		return
	}
	now := time.Now()
	frame, err := pd.Frame(now)
	if err != nil {
		metrics.RecordFrameRejected()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	candidates := a.classifier.Classify(classify.NewHistory(2), frame)
	metrics.RecordClassifyLatency(float64(time.Since(start).Microseconds()) / 1000)
	metrics.RecordFrameProcessed()
	for _, c := range candidates {
		metrics.RecordMoveCandidate(string(c.Type))
	}

	var snap types.GameSnapshot
	if pd.PlayerID != "" && len(candidates) > 0 {
		reply := make(chan session.SubmitResult, 1)
		a.ctrl.Inbox() <- session.SubmitMoves{
			PlayerID:   pd.PlayerID,
			Keypoints:  pd.Keypoints,
			Candidates: candidates,
			At:         now,
			Reply:      reply,
		}
		snap = (<-reply).Snapshot
	} else {
		reply := make(chan types.GameSnapshot, 1)
		a.ctrl.Inbox() <- session.GetSnapshot{Reply: reply}
		snap = <-reply
	}

	writeJSON(w, http.StatusOK, struct {
		Moves     []types.MoveCandidate `json:"moves"`
		Game      types.GameSnapshot    `json:"game"`
		Timestamp float64               `json:"timestamp"`
	}{
		Moves:     types.NewMoveCandidates(candidates),
		Game:      snap,
		Timestamp: types.UnixSeconds(now),
	})
}
