// Command rtags-helper is the short-lived extractor subprocess spawned by
// internal/localworker for each locally-dispatched IndexerJob. It reads a
// serialized Unit from stdin, performs the visit-file handshake with the
// daemon over a Unix socket for every include it discovers, and posts its
// final IndexerMessage back over the same socket.
//
// Actual symbol extraction (ClangIndexer) is out of scope for the core
// orchestrator per the specification: this binary's extraction step is a
// stand-in that walks #include directives in the preprocessed text and
// reports them as dependencies, plus a regex pass over top-level function
// definitions, which is enough to exercise the visit-file/suspended-file
// invariant and the symbol store's write path end to end without a real
// parser.
package main

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/rosrad/rtagsd/pkg/protocol"
	"github.com/rosrad/rtagsd/pkg/rtags"
)

var includeRe = regexp.MustCompile(`(?m)^\s*#\s*include\s*["<]([^">]+)[">]`)

// declRe matches a C/C++ top-level function definition: a return type, a
// name, a parenthesized argument list, and an opening brace on the same
// logical line. It's a stand-in for real declaration parsing, good enough
// to exercise the symbols/refs tables without a compiler frontend.
var declRe = regexp.MustCompile(`(?m)^[A-Za-z_][\w:\*&\s]*[\s\*&]([A-Za-z_]\w*)\s*\([^;{}]*\)\s*\{`)

// identRe matches a bare identifier, used to find references to already
// declared symbols elsewhere in the same translation unit.
var identRe = regexp.MustCompile(`[A-Za-z_]\w*`)

func main() {
	socketPath := flag.String("callback-socket", "", "unix socket to call back to the daemon")
	jobIDFlag := flag.String("job-id", "", "job id this invocation serves")
	project := flag.String("project", "", "project root")
	flag.Parse()

	jobIDNum, err := strconv.ParseUint(*jobIDFlag, 10, 64)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rtags-helper: bad --job-id:", err)
		os.Exit(1)
	}
	jobID := rtags.JobID(jobIDNum)

	var unit protocol.WireUnit
	if err := gob.NewDecoder(bufio.NewReader(os.Stdin)).Decode(&unit); err != nil {
		fmt.Fprintln(os.Stderr, "rtags-helper: decode unit:", err)
		os.Exit(1)
	}

	msg := &protocol.IndexerMessage{
		JobID:   jobID,
		Project: *project,
		Success: true,
	}

	for _, include := range includeRe.FindAllStringSubmatch(string(unit.Preprocessed), -1) {
		path := include[1]
		visit, err := visitFile(*socketPath, jobID, path)
		if err != nil {
			slog.Warn("rtags-helper: visit-file query failed", "path", path, "error", err)
			continue
		}
		msg.Visited = append(msg.Visited, path)
		if !visit {
			continue
		}
	}
	msg.Visited = append(msg.Visited, unit.SourceFile)

	data := extractIndexData(unit.SourceFile, unit.Preprocessed)
	encoded, err := encodeIndexData(data)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rtags-helper: encode index data:", err)
		os.Exit(1)
	}
	msg.Symbols = encoded

	if err := postResult(*socketPath, msg); err != nil {
		fmt.Fprintln(os.Stderr, "rtags-helper: post result:", err)
		os.Exit(1)
	}
}

// extractIndexData runs the stand-in declaration/reference scan described
// in this file's doc comment: every top-level function definition in
// source becomes a SymbolRecord, and every later bare-word occurrence of
// that name becomes a ReferenceRecord.
func extractIndexData(sourceFile string, source []byte) rtags.IndexData {
	var data rtags.IndexData

	declEnd := make(map[string]int) // symbol name -> byte offset just past its declaration line
	for _, m := range declRe.FindAllSubmatchIndex(source, -1) {
		name := string(source[m[2]:m[3]])
		line, col := lineCol(source, m[2])
		data.Symbols = append(data.Symbols, rtags.SymbolRecord{
			Name:   name,
			Kind:   "function",
			File:   sourceFile,
			Line:   line,
			Column: col,
			IsDef:  true,
		})
		declEnd[name] = m[1]
	}
	if len(data.Symbols) == 0 {
		return data
	}

	for _, m := range identRe.FindAllIndex(source, -1) {
		name := string(source[m[0]:m[1]])
		end, declared := declEnd[name]
		if !declared || m[0] < end {
			continue // not a tracked symbol, or still inside its own declaration
		}
		line, col := lineCol(source, m[0])
		data.References = append(data.References, rtags.ReferenceRecord{
			SymbolName: name,
			File:       sourceFile,
			Line:       line,
			Column:     col,
		})
	}
	return data
}

// lineCol returns the 1-based line and column of byte offset pos in text.
func lineCol(text []byte, pos int) (int, int) {
	line := 1 + bytes.Count(text[:pos], []byte("\n"))
	if nl := bytes.LastIndexByte(text[:pos], '\n'); nl >= 0 {
		return line, pos - nl
	}
	return line, pos + 1
}

func encodeIndexData(data rtags.IndexData) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func visitFile(socketPath string, jobID rtags.JobID, path string) (bool, error) {
	if strings.TrimSpace(socketPath) == "" {
		return true, nil
	}
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	frame, err := protocol.Encode(protocol.TypeVisitFile, protocol.VisitFileMessage{JobID: jobID, FilePath: path})
	if err != nil {
		return false, err
	}
	if err := protocol.WriteFrame(conn, frame); err != nil {
		return false, err
	}

	reply, err := protocol.ReadFrame(conn)
	if err != nil {
		return false, err
	}
	var resp protocol.VisitFileResponseMessage
	if err := protocol.Decode(reply, &resp); err != nil {
		return false, err
	}
	return resp.Visit, nil
}

func postResult(socketPath string, msg *protocol.IndexerMessage) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	frame, err := protocol.Encode(protocol.TypeIndexer, *msg)
	if err != nil {
		return err
	}
	return protocol.WriteFrame(conn, frame)
}
