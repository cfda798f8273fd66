package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config configures metric labels.
type Config struct {
	ServiceName string
	Environment string
}

const (
	LockResourceAccount           = "account"
	LockResourceReceipt           = "receipt"
	LockResourceReimbursement     = "reimbursement"
	LockResourceDocumentSequence  = "document_sequence"
	OutcomeCommitted              = "committed"
	OutcomeRolledBack             = "rolled_back"
	SettlementOperationConfirm    = "receipt_confirm"
	SettlementOperationCancel     = "receipt_cancel"
	SettlementOperationDelete     = "receipt_delete"
	SettlementOperationPayment    = "reimbursement_pay"
	SettlementOperationTransition = "reimbursement_transition"
)

// Metrics captures settlement health signals: balance mutations, workflow
// transitions, serial reservations and row-lock contention.
type Metrics struct {
	balanceMutations   *prometheus.CounterVec
	transitions        *prometheus.CounterVec
	settlementOutcomes *prometheus.CounterVec
	serialReservations *prometheus.CounterVec
	lockWait           *prometheus.HistogramVec
}

// New registers the settlement instruments on the default registerer.
func New(cfg Config) *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer, cfg)
}

func NewWithRegisterer(registerer prometheus.Registerer, cfg Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabelsFor(cfg)

	balanceMutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "officeflow_account_balance_mutations_total",
		Help:        "Committed account balance mutations by source.",
		ConstLabels: constLabels,
	}, []string{"source_type"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "officeflow_workflow_transitions_total",
		Help:        "Committed workflow status transitions.",
		ConstLabels: constLabels,
	}, []string{"document", "from", "to"})
	settlementOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "officeflow_settlement_operations_total",
		Help:        "Settlement transactions by operation and outcome.",
		ConstLabels: constLabels,
	}, []string{"operation", "outcome"})
	serialReservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "officeflow_serial_reservations_total",
		Help:        "Document serial numbers reserved by document type.",
		ConstLabels: constLabels,
	}, []string{"document_type"})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "officeflow_db_lock_wait_seconds",
		Help:        "Time spent acquiring SELECT FOR UPDATE row locks.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"resource"})

	registerer.MustRegister(
		balanceMutations,
		transitions,
		settlementOutcomes,
		serialReservations,
		lockWait,
	)

	return &Metrics{
		balanceMutations:   balanceMutations,
		transitions:        transitions,
		settlementOutcomes: settlementOutcomes,
		serialReservations: serialReservations,
		lockWait:           lockWait,
	}
}

func (m *Metrics) RecordBalanceMutation(sourceType string) {
	if m == nil {
		return
	}
	m.balanceMutations.WithLabelValues(strings.TrimSpace(sourceType)).Inc()
}

func (m *Metrics) RecordTransition(document, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(document, from, to).Inc()
}

// RecordSettlement counts a settlement transaction by whether it committed.
func (m *Metrics) RecordSettlement(operation string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeCommitted
	if err != nil {
		outcome = OutcomeRolledBack
	}
	m.settlementOutcomes.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) RecordSerialReservation(documentType string) {
	if m == nil {
		return
	}
	m.serialReservations.WithLabelValues(documentType).Inc()
}

// ObserveLockWait records how long a row lock took to acquire.
func (m *Metrics) ObserveLockWait(resource string, d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(resource).Observe(d.Seconds())
}

func constLabelsFor(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "officeflow"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}
