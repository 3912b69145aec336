package notify

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStyleString(t *testing.T) {
	assert.Equal(t, "info", StyleInfo.String())
	assert.Equal(t, "success", StyleSuccess.String())
	assert.Equal(t, "warning", StyleWarning.String())
	assert.Equal(t, "danger", StyleDanger.String())
}

func TestDanger(t *testing.T) {
	n := Danger("Error", "boom")
	assert.Equal(t, StyleDanger, n.Style)
	assert.Equal(t, "Error", n.Title)
	assert.Equal(t, "boom", n.Message)
	assert.False(t, n.Time.IsZero())
}

func TestChannelDropsWhenFull(t *testing.T) {
	c := NewChannel(2)
	for i := 0; i < 5; i++ {
		c.Notify(Danger("Error", "x"))
	}
	assert.Len(t, c.C(), 2)
	assert.Equal(t, 3, c.Dropped())
}

func TestRecorderConcurrent(t *testing.T) {
	var r Recorder
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Notify(Danger("Error", "x"))
		}()
	}
	wg.Wait()
	assert.Len(t, r.All(), 50)
}

func TestWriterPlain(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, false)
	w.Notify(Danger("Error", "device went away"))
	assert.Equal(t, "Error: device went away\n", buf.String())
}

func TestWriterColor(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, true)
	w.Notify(Notification{Style: StyleSuccess, Title: "Paired", Message: "ok"})
	require.Contains(t, buf.String(), "Paired:")
	assert.Contains(t, buf.String(), "ok\n")
}

func TestFunc(t *testing.T) {
	var got []Notification
	var n Notifier = Func(func(x Notification) { got = append(got, x) })
	n.Notify(Danger("Error", "x"))
	assert.Len(t, got, 1)
}
