package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/kbe-tools/kbelog/pkg/log"
	"github.com/kbe-tools/kbelog/pkg/wire"
)

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	TotalEvents       int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Commands          map[uint16]int
	LogTypes          map[string]int
	UnknownCommands   map[uint16]int
	BytesIn           int
	BytesOut          int
	Connections       map[string]*ConnectionStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen   time.Time
	LastSeen    time.Time
	Events      int
	RemoteAddr  string
	LogMessages int
	Heartbeats  int
}

// CollectStats reads the whole capture file.
func CollectStats(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Commands:          make(map[uint16]int),
		LogTypes:          make(map[string]int),
		UnknownCommands:   make(map[uint16]int),
		Connections:       make(map[string]*ConnectionStats),
	}

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
	return stats, nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByCategory[event.Category]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{
			FirstSeen: event.Timestamp,
			LastSeen:  event.Timestamp,
		}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if conn.RemoteAddr == "" {
		conn.RemoteAddr = event.RemoteAddr
	}

	switch {
	case event.Frame != nil:
		s.EventsByDirection[event.Direction]++
		if event.Direction == log.DirectionIn {
			s.BytesIn += event.Frame.Size
		} else {
			s.BytesOut += event.Frame.Size
		}
	case event.Command != nil:
		s.EventsByDirection[event.Direction]++
		s.Commands[event.Command.CommandID]++
		if event.Command.LogType != "" {
			s.LogTypes[event.Command.LogType]++
		}
		switch event.Command.CommandID {
		case wire.CommandLogMessage:
			conn.LogMessages++
		case wire.CommandHeartbeat:
			conn.Heartbeats++
		}
	case event.Error != nil:
		s.Errors++
		if event.Error.CommandID != nil {
			s.UnknownCommands[*event.Error.CommandID]++
		}
	}
}

// RunStats analyzes the capture file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := CollectStats(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func sortedIDs(m map[uint16]int) []uint16 {
	ids := make([]uint16, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== KBEngine Logger Capture Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintf(w, "Bytes In:     %d\n", stats.BytesIn)
	fmt.Fprintf(w, "Bytes Out:    %d\n", stats.BytesOut)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryRaw, log.CategoryCommand, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.Commands) > 0 {
		fmt.Fprintln(w, "Commands:")
		for _, id := range sortedIDs(stats.Commands) {
			fmt.Fprintf(w, "  %-12s %d\n", wire.CommandName(id)+":", stats.Commands[id])
		}
		fmt.Fprintln(w)
	}

	if len(stats.LogTypes) > 0 {
		fmt.Fprintln(w, "Logs Sent by Type:")
		for _, lt := range wire.LogTypes {
			if count := stats.LogTypes[lt.String()]; count > 0 {
				fmt.Fprintf(w, "  %-12s %d\n", lt.String()+":", count)
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenConnID(c.id), c.stats.Events, duration)
			if c.stats.RemoteAddr != "" {
				fmt.Fprintf(w, "           Remote: %s\n", c.stats.RemoteAddr)
			}
			if c.stats.LogMessages > 0 || c.stats.Heartbeats > 0 {
				fmt.Fprintf(w, "           Logs: %d, Heartbeats: %d\n", c.stats.LogMessages, c.stats.Heartbeats)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
		for _, id := range sortedIDs(stats.UnknownCommands) {
			fmt.Fprintf(w, "  unknown command %d: %d\n", id, stats.UnknownCommands[id])
		}
	}
}
