package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"smsrelay/internal/constants"
	"smsrelay/internal/dispatch"
	"smsrelay/internal/ingest"
	"smsrelay/internal/metrics"
	"smsrelay/internal/middleware"
	"smsrelay/internal/models"
	"smsrelay/internal/settings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// PendingCounter exposes the delivery queue's backlog for the health report.
type PendingCounter interface {
	PendingCount(ctx context.Context) (int, error)
}

// FilterEngine is the part of the filter the server needs: reading the
// effective configuration for GET /filter/rules.
type FilterEngine interface {
	Config() models.FilterConfig
}

// Server is the relay's local HTTP surface. The platform agent feeds
// ingestion events and delivery reports into it; operators read health,
// metrics, and filter rules, and edit the rules, through it. It binds to a
// local port and is not meant to face the internet.
type Server struct {
	router   *mux.Router
	logger   *logrus.Logger
	port     int
	settings settings.Store
	filter   FilterEngine
	pending  PendingCounter

	broadcast    *ingest.BroadcastSource
	observer     *ingest.StoreObserver
	notification *ingest.NotificationSource
	messages     ingest.MessageStore
	correlator   *dispatch.Correlator
	dispatcher   *dispatch.Dispatcher

	server *http.Server
}

func NewServer(
	port int,
	store settings.Store,
	filterEngine FilterEngine,
	pending PendingCounter,
	broadcast *ingest.BroadcastSource,
	observer *ingest.StoreObserver,
	notification *ingest.NotificationSource,
	messages ingest.MessageStore,
	correlator *dispatch.Correlator,
	dispatcher *dispatch.Dispatcher,
	logger *logrus.Logger,
) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		logger:       logger,
		port:         port,
		settings:     store,
		filter:       filterEngine,
		pending:      pending,
		broadcast:    broadcast,
		observer:     observer,
		notification: notification,
		messages:     messages,
		correlator:   correlator,
		dispatcher:   dispatcher,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	filter := s.router.PathPrefix("/filter/rules").Subrouter()
	filter.HandleFunc("", s.handleGetFilterRules()).Methods(http.MethodGet)
	filter.HandleFunc("", s.handlePutFilterRules()).Methods(http.MethodPut)

	ingestRoutes := s.router.PathPrefix("/ingest").Subrouter()
	ingestRoutes.HandleFunc("/broadcast", s.handleBroadcast()).Methods(http.MethodPost)
	ingestRoutes.HandleFunc("/store-change", s.handleStoreChange()).Methods(http.MethodPost)
	ingestRoutes.HandleFunc("/notification", s.handleNotification()).Methods(http.MethodPost)

	radioRoutes := s.router.PathPrefix("/radio").Subrouter()
	radioRoutes.HandleFunc("/delivery-report", s.handleDeliveryReport()).Methods(http.MethodPost)

	s.router.HandleFunc("/send", s.handleSend()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}

	s.logger.Infof("Starting local server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := map[string]interface{}{
			"status":     "ok",
			"registered": s.settings.GetString(settings.KeyDeviceID, "") != "",
		}
		if s.pending != nil {
			if pending, err := s.pending.PendingCount(r.Context()); err == nil {
				report["pendingTasks"] = pending
			}
		}
		s.writeJSON(w, http.StatusOK, report)
	}
}

func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, metrics.GetAllMetrics())
	}
}

func (s *Server) handleGetFilterRules() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, s.filter.Config())
	}
}

func (s *Server) handlePutFilterRules() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cfg models.FilterConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid filter config")
			return
		}
		if err := validateFilterConfig(cfg); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		cfg.Version = models.FilterConfigVersion
		blob, err := json.Marshal(cfg)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "failed to encode filter config")
			return
		}
		if err := s.settings.SetString(settings.KeyFilterConfig, string(blob)); err != nil {
			s.logger.WithError(err).Error("Failed to persist filter config")
			s.writeError(w, http.StatusInternalServerError, "failed to persist filter config")
			return
		}

		s.logger.WithFields(logrus.Fields{
			"enabled": cfg.Enabled,
			"mode":    cfg.Mode,
			"rules":   len(cfg.Rules),
		}).Info("Filter config updated")
		s.writeJSON(w, http.StatusOK, cfg)
	}
}

type broadcastPayload struct {
	Fragments []struct {
		Sender          string `json:"sender"`
		Body            string `json:"body"`
		TimestampMillis int64  `json:"timestampMillis"`
	} `json:"fragments"`
}

func (s *Server) handleBroadcast() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload broadcastPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid broadcast payload")
			return
		}
		if len(payload.Fragments) == 0 {
			s.writeError(w, http.StatusBadRequest, "broadcast payload has no fragments")
			return
		}

		fragments := make([]ingest.Fragment, 0, len(payload.Fragments))
		for _, f := range payload.Fragments {
			fragments = append(fragments, ingest.Fragment{
				Sender:          f.Sender,
				Body:            f.Body,
				TimestampMillis: f.TimestampMillis,
			})
		}
		s.broadcast.OnFragments(r.Context(), fragments)
		w.WriteHeader(http.StatusAccepted)
	}
}

type storeChangePayload struct {
	Address          string `json:"address"`
	Body             string `json:"body"`
	ReceivedAtMillis int64  `json:"receivedAtMillis"`
	Protocol         string `json:"protocol"`
}

// handleStoreChange accepts a message-store change notification. The agent
// may mirror the changed row, protocol flag included, in the request body;
// an empty body is a bare notification that only triggers a rescan.
func (s *Server) handleStoreChange() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload storeChangePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, "invalid store-change payload")
			return
		}

		if payload.Address != "" || payload.Body != "" {
			if err := s.messages.Insert(r.Context(), models.StoredMessage{
				Address:          payload.Address,
				Body:             payload.Body,
				ReceivedAtMillis: payload.ReceivedAtMillis,
				Protocol:         payload.Protocol,
			}); err != nil {
				s.logger.WithError(err).Error("Failed to record mirrored store row")
				s.writeError(w, http.StatusInternalServerError, "failed to record message")
				return
			}
		}

		s.observer.OnStoreChanged(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}
}

func (s *Server) handleNotification() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var evt ingest.NotificationEvent
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid notification payload")
			return
		}
		s.notification.OnNotification(r.Context(), evt)
		w.WriteHeader(http.StatusAccepted)
	}
}

type deliveryReport struct {
	MessageID  string `json:"messageId"`
	BatchID    string `json:"batchId"`
	ResultCode int    `json:"resultCode"`
}

func (s *Server) handleDeliveryReport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var report deliveryReport
		if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid delivery report")
			return
		}
		if report.MessageID == "" {
			s.writeError(w, http.StatusBadRequest, "delivery report needs a messageId")
			return
		}
		s.correlator.OnDeliveredResult(report.MessageID, report.BatchID, report.ResultCode)
		w.WriteHeader(http.StatusAccepted)
	}
}

type sendPayload struct {
	Recipients      []string `json:"recipients"`
	Message         string   `json:"message"`
	MessageID       string   `json:"smsId"`
	BatchID         string   `json:"smsBatchId"`
	SimSubscription *int     `json:"simSubscription"`
}

func (s *Server) handleSend() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload sendPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid send payload")
			return
		}
		if len(payload.Recipients) == 0 || payload.Message == "" {
			s.writeError(w, http.StatusBadRequest, "send payload needs recipients and a message")
			return
		}

		req := models.OutboundRequest{
			Recipients:      payload.Recipients,
			Message:         payload.Message,
			MessageID:       payload.MessageID,
			BatchID:         payload.BatchID,
			SimSubscription: constants.DefaultSimSubscription,
		}
		if payload.SimSubscription != nil {
			req.SimSubscription = *payload.SimSubscription
		}

		outcomes := s.dispatcher.Send(r.Context(), req)
		s.writeJSON(w, http.StatusAccepted, map[string]interface{}{"initiated": outcomes})
	}
}

func validateFilterConfig(cfg models.FilterConfig) error {
	switch cfg.Mode {
	case "", models.ModeAllowList, models.ModeBlockList:
	default:
		return fmt.Errorf("unknown filter mode %q", cfg.Mode)
	}
	for i, rule := range cfg.Rules {
		if rule.Pattern == "" {
			return fmt.Errorf("rule %d has an empty pattern", i)
		}
		switch rule.MatchType {
		case models.MatchExact, models.MatchStartsWith, models.MatchEndsWith, models.MatchContains:
		default:
			return fmt.Errorf("rule %d has unknown match type %q", i, rule.MatchType)
		}
		switch rule.Target {
		case "", models.TargetSender, models.TargetMessage, models.TargetBoth:
		default:
			return fmt.Errorf("rule %d has unknown target %q", i, rule.Target)
		}
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
