package natsadapter

import (
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects and streams used by the analysis services.
const (
	SubjectRequests  = "regionstats.requests.>"
	SubjectProgress  = "regionstats.progress.>"
	SubjectCompleted = "regionstats.completed.>"

	StreamRequests = "REGIONSTATS_REQUESTS"
	StreamEvents   = "REGIONSTATS_EVENTS"

	durableDispatcher = "analysis-dispatcher"
)

// RequestSubject is the subject an analysis request for a project is queued on.
func RequestSubject(projectID int64) string {
	return "regionstats.requests." + strconv.FormatInt(projectID, 10)
}

// ProgressSubject is the subject progress of a run is published on.
func ProgressSubject(runID string) string {
	return "regionstats.progress." + token(runID)
}

// CompletedSubject is the subject the outcome of a run is published on.
func CompletedSubject(runID string) string {
	return "regionstats.completed." + token(runID)
}

// token keeps a subject token free of separators and wildcards.
func token(s string) string {
	if s == "" {
		return "_"
	}
	b := []byte(s)
	for i, c := range b {
		switch c {
		case '.', '*', '>', ' ':
			b[i] = '_'
		}
	}
	return string(b)
}

// streamConfigs lists the JetStream streams the publisher ensures.
func streamConfigs() []nats.StreamConfig {
	return []nats.StreamConfig{
		{
			Name:      StreamRequests,
			Subjects:  []string{SubjectRequests},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      StreamEvents,
			Subjects:  []string{SubjectCompleted},
			Retention: nats.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}
}

func connect(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("regionstats"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return connect(url)
}
