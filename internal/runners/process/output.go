package process

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"time"
)

// Stream identifies the stream a line was read from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// String returns the stream name.
func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// OutputLine is one line of command output.
type OutputLine struct {
	Content   string
	Stream    Stream
	Timestamp time.Time
	// Number is the 1-based position across both streams.
	Number int
}

// Output collects the lines of one execution. Only the most recent
// lines are kept once the capacity is reached.
type Output struct {
	mu         sync.Mutex
	lines      []OutputLine
	head       int
	count      int
	total      int
	bufferSize int
}

// NewOutput creates an output keeping at most capacity lines and reading
// lines of at most bufferSize bytes.
func NewOutput(capacity, bufferSize int) *Output {
	if capacity <= 0 {
		capacity = 1000
	}
	if bufferSize <= 0 {
		bufferSize = 64 * 1024
	}
	return &Output{lines: make([]OutputLine, capacity), bufferSize: bufferSize}
}

// Consume reads r line by line until EOF, storing each line and passing
// it to fn. It returns the scanner error, if any.
func (o *Output) Consume(r io.Reader, stream Stream, fn func(OutputLine)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(4096, o.bufferSize)), o.bufferSize)

	for scanner.Scan() {
		line := o.add(scanner.Text(), stream)
		if fn != nil {
			fn(line)
		}
	}
	return scanner.Err()
}

func (o *Output) add(content string, stream Stream) OutputLine {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.total++
	line := OutputLine{Content: content, Stream: stream, Timestamp: time.Now(), Number: o.total}

	capacity := len(o.lines)
	o.lines[(o.head+o.count)%capacity] = line
	if o.count < capacity {
		o.count++
	} else {
		o.head = (o.head + 1) % capacity
	}
	return line
}

// Lines returns the kept lines, oldest first.
func (o *Output) Lines() []OutputLine {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]OutputLine, o.count)
	for i := range out {
		out[i] = o.lines[(o.head+i)%len(o.lines)]
	}
	return out
}

// Total returns the number of lines read, including dropped ones.
func (o *Output) Total() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.total
}

// Tail returns the last n kept lines.
func (o *Output) Tail(n int) []OutputLine {
	lines := o.Lines()
	if n <= 0 {
		return nil
	}
	if n < len(lines) {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// Text joins the kept lines of stream with newlines. A negative stream
// selects both.
func (o *Output) Text(stream Stream) string {
	var b strings.Builder
	for _, line := range o.Lines() {
		if stream >= 0 && line.Stream != stream {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line.Content)
	}
	return b.String()
}

// AllStreams selects both streams in Output.Text.
const AllStreams Stream = -1
