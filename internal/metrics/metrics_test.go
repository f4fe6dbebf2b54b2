package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecording(t *testing.T) {
	m := New()

	m.IncrementJobsTotal("version", "success")
	m.IncrementJobsTotal("version", "success")
	m.IncrementJobsTotal("ping", "fatal")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobsTotal.WithLabelValues("version", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsTotal.WithLabelValues("ping", "fatal")))

	m.IncrementJobRetries("version")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRetries.WithLabelValues("version")))

	m.IncrementParseErrors()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.parseErrors))

	m.SetActiveWorkers(5)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.activeWorkers))
	m.AddActiveWorkers(-2)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeWorkers))

	m.SetQueuedJobs(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(m.queuedJobs))

	m.IncrementStoreCommits()
	m.IncrementStoreQueries()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeCommits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeQueries))
}

func TestRecordJobDuration(t *testing.T) {
	m := New()
	m.RecordJobDuration("version", 2*time.Second)

	count := testutil.CollectAndCount(m.jobDuration)
	assert.Equal(t, 1, count)
}

func TestRegistryGathers(t *testing.T) {
	m := New()
	m.IncrementJobsTotal("default", "success")

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestGetGlobalMetricsIsSingleton(t *testing.T) {
	assert.Same(t, GetGlobalMetrics(), GetGlobalMetrics())
}
