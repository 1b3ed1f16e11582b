package interview

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/fieldvoice/reporter/pkg/checklist"
	"github.com/fieldvoice/reporter/pkg/connector"
	"github.com/fieldvoice/reporter/pkg/finalize"
	"github.com/fieldvoice/reporter/pkg/report"
	"github.com/fieldvoice/reporter/pkg/session"
	"github.com/fieldvoice/reporter/pkg/utils"
	"github.com/go-sql-driver/mysql"
)

// InterviewService owns the session controller and finalization pipeline,
// and records the outcome of the most recent finalization
type InterviewService struct {
	controller *session.Controller
	pipeline   *finalize.Pipeline
	store      report.Store
	fallback   *report.FallbackLog
	replayer   *report.Replayer

	mutex       sync.RWMutex
	lastOutcome *finalize.Outcome
	lastErr     error
}

var interviewService *InterviewService

/** ---- INIT ---- */

// Init builds the interview service from configuration: checklist
// definition, connector, report stores, pipeline, and controller
func Init(cfg *utils.Config) error {
	// Load the checklist definition; it is immutable once loaded
	checklistPath := cfg.GetWithDefault("CHECKLIST_CONFIG_PATH", "checklist.yaml")
	def, err := checklist.LoadDefinition(checklistPath)
	if err != nil {
		return fmt.Errorf("failed to load checklist: %w", err)
	}

	// Create the connector to the voice backend
	conn, err := makeConnector(cfg)
	if err != nil {
		return err
	}

	// Create the primary report store
	store, err := makeStore(cfg)
	if err != nil {
		return err
	}

	// Create the local fallback log
	fallbackPath := cfg.GetWithDefault("FALLBACK_LOG_PATH", "fallback.db")
	fallback, err := report.NewFallbackLog(fallbackPath)
	if err != nil {
		return fmt.Errorf("failed to open fallback log: %w", err)
	}

	pipeline := finalize.NewPipeline(conn, store, fallback, finalize.OptionsFromConfig(cfg))

	svc := &InterviewService{
		pipeline: pipeline,
		store:    store,
		fallback: fallback,
	}
	svc.controller = session.NewController(conn, def, svc.finalizeSession)

	// Optionally schedule fallback replay into the primary store
	if cfg.GetBool("REPLAY_ENABLED") {
		svc.replayer = report.NewReplayer(store, fallback)
		spec := cfg.GetWithDefault("REPLAY_CRON_SPEC", "@every 5m")
		if err := svc.replayer.Start(spec); err != nil {
			return fmt.Errorf("failed to schedule fallback replay: %w", err)
		}
		log.Printf("[INTERVIEW]: fallback replay scheduled (%s)", spec)
	}

	interviewService = svc
	return nil
}

// GetService returns the initialized interview service
func GetService() *InterviewService {
	return interviewService
}

/** ---- SERVICE ---- */

// Controller returns the session controller
func (s *InterviewService) Controller() *session.Controller {
	return s.controller
}

// Store returns the primary report store
func (s *InterviewService) Store() report.Store {
	return s.store
}

// FinalizeStatus returns the pipeline's human-readable phase status
func (s *InterviewService) FinalizeStatus() string {
	return s.pipeline.Status()
}

// LastOutcome returns the result of the most recent finalization, if any
func (s *InterviewService) LastOutcome() (*finalize.Outcome, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastOutcome, s.lastErr
}

// finalizeSession is the controller's end-of-session handoff. It runs in
// its own goroutine and is never cancelled: captured data must not be lost
func (s *InterviewService) finalizeSession(meta finalize.SessionMeta, progress checklist.Progress) {
	log.Printf("[INTERVIEW]: session %s ended with %d/%d required topics covered",
		meta.Handle.SessionID, progress.RequiredDone, progress.RequiredTotal)

	outcome, err := s.pipeline.Finalize(context.Background(), meta)

	s.mutex.Lock()
	s.lastOutcome = outcome
	s.lastErr = err
	s.mutex.Unlock()

	if err != nil {
		log.Printf("[INTERVIEW]: finalization failed for session %s: %v", meta.Handle.SessionID, err)
	}
}

/** ---- HELPERS ---- */

// makeConnector builds the voice backend connector. An in-memory connector
// can be selected for local development without a live backend
func makeConnector(cfg *utils.Config) (connector.Connector, error) {
	if cfg.GetBool("CONNECTOR_IN_MEMORY") {
		log.Println("[INTERVIEW]: using in-memory connector")
		return connector.NewInMemoryConnector(), nil
	}

	baseURL := cfg.Get("AGENT_BASE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("AGENT_BASE_URL not set in environment")
	}

	return connector.NewHTTPConnector(baseURL, cfg.Get("AGENT_API_KEY")), nil
}

// makeStore builds the primary report store from the MySQL configuration
func makeStore(cfg *utils.Config) (report.Store, error) {
	dbConfig := mysql.Config{
		User:      cfg.Get("MYSQL_USER"),
		Passwd:    cfg.Get("MYSQL_ROOT_PASSWORD"),
		Net:       "tcp",
		Addr:      fmt.Sprintf("%s:%s", cfg.Get("MYSQL_HOST"), cfg.Get("MYSQL_PORT")),
		DBName:    cfg.Get("MYSQL_DATABASE"),
		ParseTime: true,
	}

	store, err := report.NewMySqlStore(dbConfig.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize report store: %w", err)
	}

	return store, nil
}
