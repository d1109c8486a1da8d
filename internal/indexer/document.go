package indexer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Adithya-Monish-Kumar-K/coherence-index/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/errors"
)

// maxLineSize bounds a single corpus line (one document).
const maxLineSize = 16 << 20

// Document is one already-tokenised document. It only exists while the
// index is being built.
type Document struct {
	Tokens []tokenizer.Token
}

// NewDocument builds a Document from normalised terms in order.
func NewDocument(terms ...string) Document {
	tokens := make([]tokenizer.Token, len(terms))
	for i, term := range terms {
		tokens[i] = tokenizer.Token{Term: term, Position: i}
	}
	return Document{Tokens: tokens}
}

// Length is the document's token count.
func (d Document) Length() int {
	return len(d.Tokens)
}

// DocumentSource yields documents in ingestion order. Next returns io.EOF
// once the source is exhausted.
type DocumentSource interface {
	Next(ctx context.Context) (Document, error)
}

// SliceSource serves documents from memory.
type SliceSource struct {
	docs []Document
	pos  int
}

func NewSliceSource(docs ...Document) *SliceSource {
	return &SliceSource{docs: docs}
}

func (s *SliceSource) Next(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if s.pos >= len(s.docs) {
		return Document{}, io.EOF
	}
	doc := s.docs[s.pos]
	s.pos++
	return doc, nil
}

// LineSource reads one document per line from r and tokenises each line
// with the analyzer.
type LineSource struct {
	scanner  *bufio.Scanner
	analyzer tokenizer.Analyzer
	lines    int
}

func NewLineSource(r io.Reader, analyzer tokenizer.Analyzer) *LineSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &LineSource{
		scanner:  scanner,
		analyzer: analyzer,
	}
}

func (s *LineSource) Next(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				return Document{}, apperrors.Newf(apperrors.ErrFormat, "line %d exceeds %d bytes", s.lines+1, maxLineSize)
			}
			return Document{}, apperrors.IO("reading corpus line", err)
		}
		return Document{}, io.EOF
	}
	s.lines++
	return Document{Tokens: s.analyzer.Analyze(s.scanner.Text())}, nil
}

// Lines is the number of lines read so far.
func (s *LineSource) Lines() int {
	return s.lines
}

// FileHooks receive per-file notifications from a FileSource.
type FileHooks struct {
	Opened func(path string)
	Done   func(path string, docs int)
}

// FileSource chains the lines of several corpus files, opening each file
// only when the previous one is exhausted and closing it right after.
type FileSource struct {
	paths    []string
	analyzer tokenizer.Analyzer
	hooks    FileHooks
	current  *os.File
	lines    *LineSource
	next     int
}

func NewFileSource(paths []string, analyzer tokenizer.Analyzer, hooks FileHooks) *FileSource {
	return &FileSource{
		paths:    paths,
		analyzer: analyzer,
		hooks:    hooks,
	}
}

func (s *FileSource) Next(ctx context.Context) (Document, error) {
	for {
		if s.lines == nil {
			if s.next >= len(s.paths) {
				return Document{}, io.EOF
			}
			path := s.paths[s.next]
			s.next++
			f, err := os.Open(path)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return Document{}, apperrors.Newf(apperrors.ErrNotFound, "input file %s", path)
				}
				return Document{}, apperrors.IO("opening input file "+path, err)
			}
			if s.hooks.Opened != nil {
				s.hooks.Opened(path)
			}
			s.current = f
			s.lines = NewLineSource(f, s.analyzer)
		}
		doc, err := s.lines.Next(ctx)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, io.EOF) {
			s.Close()
			return Document{}, fmt.Errorf("%s: %w", s.paths[s.next-1], err)
		}
		path, docs := s.current.Name(), s.lines.Lines()
		if err := s.closeCurrent(); err != nil {
			return Document{}, err
		}
		if s.hooks.Done != nil {
			s.hooks.Done(path, docs)
		}
	}
}

func (s *FileSource) closeCurrent() error {
	if s.current == nil {
		return nil
	}
	err := s.current.Close()
	s.current = nil
	s.lines = nil
	if err != nil {
		return apperrors.IO("closing input file", err)
	}
	return nil
}

// Close releases the file currently being read, if any.
func (s *FileSource) Close() error {
	return s.closeCurrent()
}
