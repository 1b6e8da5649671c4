package oml

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ghalamif/AegisWatt/internal/domain"
	"github.com/ghalamif/AegisWatt/internal/ports"
)

// DefaultPathTemplate is where the testbed drops per-node consumption logs.
const DefaultPathTemplate = "~/.iot-lab/{experiment_id}/consumption/{node}.oml"

// FileOpener resolves a node's OML file from a path template with
// {experiment_id} and {node} placeholders. {node} is the short hostname.
type FileOpener struct {
	template     string
	experimentID int
}

func NewFileOpener(template string, experimentID int) *FileOpener {
	if template == "" {
		template = DefaultPathTemplate
	}
	return &FileOpener{template: template, experimentID: experimentID}
}

// Path returns the log file path for node.
func (o *FileOpener) Path(node domain.NodeID) string {
	p := strings.NewReplacer(
		"{experiment_id}", strconv.Itoa(o.experimentID),
		"{node}", node.Short(),
	).Replace(o.template)
	return expandHome(p)
}

func (o *FileOpener) Open(node domain.NodeID) (ports.LogSource, error) {
	path := o.Path(node)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ports.ErrNoSource)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return NewFileSource(f), nil
}

// FileSource tails an append-only log. A trailing line without a newline is
// held back until the writer completes it.
type FileSource struct {
	f       *os.File
	r       *bufio.Reader
	partial string
}

func NewFileSource(f *os.File) *FileSource {
	return &FileSource{f: f, r: bufio.NewReader(f)}
}

// ReadAvailable returns every complete line appended since the last call.
// It never waits for more data.
func (s *FileSource) ReadAvailable() ([]string, error) {
	var lines []string
	for {
		chunk, err := s.r.ReadString('\n')
		if err != nil {
			s.partial += chunk
			if errors.Is(err, io.EOF) {
				return lines, nil
			}
			return lines, fmt.Errorf("read %s: %w", s.f.Name(), err)
		}
		line := s.partial + chunk
		s.partial = ""
		lines = append(lines, strings.TrimRight(line, "\r\n"))
	}
}

func (s *FileSource) Close() error {
	return s.f.Close()
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

var (
	_ ports.LogSourceOpener = (*FileOpener)(nil)
	_ ports.LogSource       = (*FileSource)(nil)
)
