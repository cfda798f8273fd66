package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSettlementSplitsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegisterer(reg, Config{ServiceName: "test", Environment: "test"})

	m.RecordSettlement(SettlementOperationConfirm, nil)
	m.RecordSettlement(SettlementOperationConfirm, nil)
	m.RecordSettlement(SettlementOperationConfirm, errors.New("receipt_not_pending"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.settlementOutcomes.WithLabelValues(SettlementOperationConfirm, OutcomeCommitted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.settlementOutcomes.WithLabelValues(SettlementOperationConfirm, OutcomeRolledBack)))
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics
	m.RecordBalanceMutation("receipt_confirmed")
	m.RecordTransition("receipt", "PENDING", "CONFIRMED")
	m.RecordSettlement(SettlementOperationDelete, nil)
	m.RecordSerialReservation("receipt")
	m.ObserveLockWait(LockResourceAccount, time.Millisecond)
}

func TestBalanceMutationCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegisterer(reg, Config{})

	m.RecordBalanceMutation("receipt_confirmed")
	m.RecordBalanceMutation("receipt_reversed")
	m.RecordBalanceMutation("receipt_confirmed")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.balanceMutations.WithLabelValues("receipt_confirmed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.balanceMutations.WithLabelValues("receipt_reversed")))
}
