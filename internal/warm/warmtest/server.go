// Package warmtest provides an in-memory stand-in for the RedisTimeSeries
// commands used by the warm store, for tests that cannot load the module.
package warmtest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ReplyError is an error reply as the server would send it.
type ReplyError string

func (e ReplyError) Error() string { return string(e) }

// RedisError marks ReplyError as a server reply for go-redis.
func (ReplyError) RedisError() {}

const (
	errNoKey  = ReplyError("ERR TSDB: the key does not exist")
	errExists = ReplyError("ERR TSDB: key already exists")
)

type series struct {
	retention int64
	policy    string
	labels    [][2]string
	samples   map[int64]float64
}

// Server implements warm.Doer over in-memory series.
type Server struct {
	mu       sync.Mutex
	series   map[string]*series
	commands [][]any
	fail     error
}

// NewServer returns an empty server.
func NewServer() *Server {
	return &Server{series: make(map[string]*series)}
}

// FailWith makes every later command return err; nil restores normal operation.
func (s *Server) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Commands returns the names of every command received, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	for i, c := range s.commands {
		out[i] = fmt.Sprint(c[0])
	}
	return out
}

// LastArgs returns the full argument list of the most recent command named name.
func (s *Server) LastArgs(name string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.commands) - 1; i >= 0; i-- {
		if fmt.Sprint(s.commands[i][0]) == name {
			return s.commands[i]
		}
	}
	return nil
}

// Samples returns every sample of key ordered by timestamp.
func (s *Server) Samples(key string) [][2]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ser, ok := s.series[key]
	if !ok {
		return nil
	}
	out := make([][2]int64, 0, len(ser.samples))
	for _, ts := range ser.sortedTimestamps() {
		out = append(out, [2]int64{ts, int64(ser.samples[ts])})
	}
	return out
}

// Exists reports whether key is a series.
func (s *Server) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.series[key]
	return ok
}

// Do executes one command.
func (s *Server) Do(ctx context.Context, args ...any) *redis.Cmd {
	cmd := redis.NewCmd(ctx, args...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, args)

	if s.fail != nil {
		cmd.SetErr(s.fail)
		return cmd
	}

	val, err := s.exec(args)
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

func (s *Server) exec(args []any) (any, error) {
	if len(args) == 0 {
		return nil, ReplyError("ERR empty command")
	}
	name := strings.ToUpper(fmt.Sprint(args[0]))
	switch name {
	case "PING":
		return "PONG", nil
	case "TS.CREATE":
		return s.create(args[1:])
	case "TS.ADD":
		return s.add(args[1:])
	case "TS.GET":
		return s.get(args[1:])
	case "TS.INFO":
		return s.info(args[1:])
	}
	return nil, ReplyError("ERR unknown command '" + name + "'")
}

func (s *Server) create(args []any) (any, error) {
	key := fmt.Sprint(args[0])
	if _, ok := s.series[key]; ok {
		return nil, errExists
	}
	ser := &series{samples: make(map[int64]float64)}
	for i := 1; i < len(args); i++ {
		switch strings.ToUpper(fmt.Sprint(args[i])) {
		case "RETENTION":
			i++
			ser.retention = asInt(args[i])
		case "CHUNK_SIZE":
			i++
		case "UNCOMPRESSED":
		case "DUPLICATE_POLICY":
			i++
			ser.policy = strings.ToLower(fmt.Sprint(args[i]))
		case "LABELS":
			for i+2 < len(args) {
				ser.labels = append(ser.labels, [2]string{fmt.Sprint(args[i+1]), fmt.Sprint(args[i+2])})
				i += 2
			}
		}
	}
	s.series[key] = ser
	return "OK", nil
}

func (s *Server) add(args []any) (any, error) {
	key := fmt.Sprint(args[0])
	ts := asInt(args[1])
	value := asFloat(args[2])

	policy := ""
	for i := 3; i+1 < len(args); i++ {
		if strings.ToUpper(fmt.Sprint(args[i])) == "ON_DUPLICATE" {
			policy = strings.ToLower(fmt.Sprint(args[i+1]))
		}
	}

	ser, ok := s.series[key]
	if !ok {
		ser = &series{samples: make(map[int64]float64), policy: policy}
		s.series[key] = ser
	}
	if policy == "" {
		policy = ser.policy
	}

	if old, dup := ser.samples[ts]; dup {
		switch policy {
		case "last":
			ser.samples[ts] = value
		case "first":
		case "min":
			if value < old {
				ser.samples[ts] = value
			}
		case "max":
			if value > old {
				ser.samples[ts] = value
			}
		default:
			return nil, ReplyError("ERR TSDB: Error at upsert, update is not supported when DUPLICATE_POLICY is set to BLOCK mode")
		}
	} else {
		ser.samples[ts] = value
	}

	if ser.retention > 0 {
		newest := ser.sortedTimestamps()
		last := newest[len(newest)-1]
		for t := range ser.samples {
			if t < last-ser.retention {
				delete(ser.samples, t)
			}
		}
	}
	return ts, nil
}

func (s *Server) get(args []any) (any, error) {
	ser, ok := s.series[fmt.Sprint(args[0])]
	if !ok {
		return nil, errNoKey
	}
	if len(ser.samples) == 0 {
		return []any{}, nil
	}
	tss := ser.sortedTimestamps()
	last := tss[len(tss)-1]
	return []any{last, strconv.FormatFloat(ser.samples[last], 'f', -1, 64)}, nil
}

func (s *Server) info(args []any) (any, error) {
	ser, ok := s.series[fmt.Sprint(args[0])]
	if !ok {
		return nil, errNoKey
	}
	var first, last int64
	if tss := ser.sortedTimestamps(); len(tss) > 0 {
		first, last = tss[0], tss[len(tss)-1]
	}
	labels := make([]any, 0, len(ser.labels))
	for _, l := range ser.labels {
		labels = append(labels, []any{l[0], l[1]})
	}
	return []any{
		"totalSamples", int64(len(ser.samples)),
		"retentionTime", ser.retention,
		"firstTimestamp", first,
		"lastTimestamp", last,
		"chunkSize", int64(4096),
		"duplicatePolicy", ser.policy,
		"labels", labels,
	}, nil
}

func (ser *series) sortedTimestamps() []int64 {
	out := make([]int64, 0, len(ser.samples))
	for ts := range ser.samples {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	}
	i, _ := strconv.ParseInt(fmt.Sprint(v), 10, 64)
	return i
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	}
	f, _ := strconv.ParseFloat(fmt.Sprint(v), 64)
	return f
}
