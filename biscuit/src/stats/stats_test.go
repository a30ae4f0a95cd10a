package stats

import "bytes"
import "testing"
import "time"

import "github.com/google/pprof/profile"
import "github.com/prometheus/client_golang/prometheus"
import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

type portstat_t struct {
	Nread  Counter_t
	Nwrite Counter_t
	Spin   Time_t
	ignore int
}

func TestFields(t *testing.T) {
	st := &portstat_t{}
	st.Nread.Inc()
	st.Nread.Inc()
	st.Nwrite.Inc()
	st.Spin.Add(time.Now().Add(-time.Millisecond))

	fs := Fields(st)
	require.Len(t, fs, 3)
	assert.Equal(t, Field_t{Name: "Nread", Val: 2}, fs[0])
	assert.Equal(t, Field_t{Name: "Nwrite", Val: 1}, fs[1])
	assert.True(t, fs[2].Time)
	assert.GreaterOrEqual(t, fs[2].Val, int64(time.Millisecond))

	assert.Contains(t, Stats2String(st), "#Nread: 2")
	Reset(st)
	assert.Zero(t, st.Nread.Get())
	assert.Zero(t, st.Spin.Get())

	assert.Panics(t, func() { Fields(*st) })
}

func TestCollector(t *testing.T) {
	p0, p1 := &portstat_t{}, &portstat_t{}
	p0.Nread.Inc()
	p1.Nwrite.Inc()
	p1.Nwrite.Inc()
	c := Mkcollector("ahci", "port", func() []Source_t {
		return []Source_t{{"0", p0}, {"1", p1}}
	})
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))
	mfs, err := reg.Gather()
	require.NoError(t, err)

	got := map[string]float64{}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			got[mf.GetName()+"/"+m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, got["ahci_nread_total/0"])
	assert.Equal(t, 2.0, got["ahci_nwrite_total/1"])
	assert.Contains(t, got, "ahci_spin_seconds_total/0")
}

func TestProfile(t *testing.T) {
	p0 := &portstat_t{}
	p0.Nread.Inc()
	p0.Nwrite.Inc()
	p0.Nwrite.Inc()
	p := Profile([]Source_t{{"port0", p0}})
	require.NoError(t, p.CheckValid())
	require.Len(t, p.Sample, 2)
	assert.Equal(t, []int64{2}, p.Sample[1].Value)

	var b bytes.Buffer
	require.NoError(t, p.Write(&b))
	back, err := profile.Parse(&b)
	require.NoError(t, err)
	assert.Len(t, back.Sample, 2)
}
