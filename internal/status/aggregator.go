// Package status resolves the online/paired state of every bookmarked
// device concurrently.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/icarus-itcs/lazyedge/internal/bookmark"
	"github.com/icarus-itcs/lazyedge/internal/device"
	"github.com/icarus-itcs/lazyedge/internal/edge"
	"github.com/icarus-itcs/lazyedge/internal/notify"
	"github.com/icarus-itcs/lazyedge/internal/tracer"
)

// Order controls how rows are ordered in a refresh result.
type Order string

const (
	// OrderCompletion lists devices in the order their queries finished.
	OrderCompletion Order = "completion"
	// OrderBookmark lists devices in the order the bookmarks were given.
	OrderBookmark Order = "bookmark"
)

// Options tunes the aggregator.
type Options struct {
	Order Order
}

// Aggregator queries every bookmark concurrently and joins the results.
type Aggregator struct {
	connector edge.Connector
	repo      bookmark.Repository
	notifier  notify.Notifier
	logger    *slog.Logger
	opts      Options
}

// New creates an Aggregator.
func New(connector edge.Connector, repo bookmark.Repository, notifier notify.Notifier, logger *slog.Logger, opts Options) *Aggregator {
	if opts.Order == "" {
		opts.Order = OrderCompletion
	}
	return &Aggregator{
		connector: connector,
		repo:      repo,
		notifier:  notifier,
		logger:    logger,
		opts:      opts,
	}
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewCycleID returns a ULID identifying one refresh cycle. IDs from one
// process sort in creation order.
func NewCycleID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Refresh resolves the status of bookmarks under a fresh cycle ID.
func (a *Aggregator) Refresh(ctx context.Context, bookmarks []bookmark.Bookmark) []device.Device {
	return a.RefreshCycle(ctx, NewCycleID(), bookmarks)
}

// RefreshAll lists the repository and refreshes every bookmark.
func (a *Aggregator) RefreshAll(ctx context.Context, cycle string) ([]device.Device, error) {
	bookmarks, err := a.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	return a.RefreshCycle(ctx, cycle, bookmarks), nil
}

// RefreshCycle launches one query per bookmark and returns once all of
// them have resolved. Bookmarks whose query failed with a transient
// error are reported to the notifier and left out of the result.
func (a *Aggregator) RefreshCycle(ctx context.Context, cycle string, bookmarks []bookmark.Bookmark) []device.Device {
	ctx, span := tracer.StartSpan(ctx, "status.Refresh", trace.WithAttributes(
		tracer.StringAttr("cycle", cycle),
		tracer.IntAttr("bookmarks", len(bookmarks)),
	))
	defer span.End()

	start := time.Now()
	a.logger.Debug("refresh started", "cycle", cycle, "bookmarks", len(bookmarks))

	var (
		mu     sync.Mutex
		rows   = make([]device.Device, 0, len(bookmarks))
		failed int
		wg     sync.WaitGroup
	)
	for _, b := range bookmarks {
		wg.Add(1)
		go func(b bookmark.Bookmark) {
			defer wg.Done()
			row, err := a.query(ctx, b)
			if err != nil {
				a.logger.Warn("device query failed", "cycle", cycle, "bookmark", b.ID, "error", err)
				a.notifier.Notify(notify.Danger("Error",
					fmt.Sprintf("An error occurred when retrieving device information: %v", err)))
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			mu.Lock()
			rows = append(rows, row)
			mu.Unlock()
		}(b)
	}
	wg.Wait()

	if a.opts.Order == OrderBookmark {
		sortByInput(rows, bookmarks)
	}

	span.SetAttributes(tracer.IntAttr("devices", len(rows)), tracer.IntAttr("failed", failed))
	tracer.SetOK(span)
	a.logger.Info("refresh complete",
		"cycle", cycle,
		"devices", len(rows),
		"failed", failed,
		"duration", time.Since(start),
	)
	return rows
}

func (a *Aggregator) query(ctx context.Context, b bookmark.Bookmark) (device.Device, error) {
	ctx, span := tracer.StartSpan(ctx, "status.Query", trace.WithAttributes(
		tracer.StringAttr("bookmark", b.ID),
	))
	defer span.End()

	row := device.Device{Bookmark: b}

	conn, err := a.connector.Connect(ctx, b)
	switch Classify(err) {
	case ClassNone:
	case ClassUnreachable:
		span.SetAttributes(tracer.BoolAttr("online", false))
		return row, nil
	default:
		tracer.RecordError(span, err)
		return row, err
	}
	row.Online = true

	user, err := conn.CurrentUser(ctx)
	switch Classify(err) {
	case ClassNone:
	case ClassNotPaired:
		span.SetAttributes(tracer.BoolAttr("online", true), tracer.BoolAttr("paired", false))
		return row, nil
	default:
		tracer.RecordError(span, err)
		return row, err
	}

	span.SetAttributes(tracer.BoolAttr("online", true), tracer.BoolAttr("paired", user.Paired()))
	if !user.Paired() {
		return row, nil
	}

	row.Paired = true
	row.Bookmark.Role = user.Role
	if user.Role != b.Role {
		if err := a.repo.SetRole(ctx, b.ID, user.Role); err != nil {
			a.logger.Warn("persist role failed", "bookmark", b.ID, "error", err)
		}
	}
	return row, nil
}

func sortByInput(rows []device.Device, bookmarks []bookmark.Bookmark) {
	pos := make(map[string]int, len(bookmarks))
	for i, b := range bookmarks {
		if _, ok := pos[b.ID]; !ok {
			pos[b.ID] = i
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return pos[rows[i].Bookmark.ID] < pos[rows[j].Bookmark.ID]
	})
}

// Summary counts row states.
type Summary struct {
	Total  int
	Online int
	Paired int
}

// Summarize counts the states in rows.
func Summarize(rows []device.Device) Summary {
	s := Summary{Total: len(rows)}
	for _, r := range rows {
		if r.Online {
			s.Online++
		}
		if r.Online && r.Paired {
			s.Paired++
		}
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%d devices, %d online, %d paired", s.Total, s.Online, s.Paired)
}
