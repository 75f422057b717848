// Command rc is the thin client: it submits compile commands and
// queries to a running rtagsd over its Unix domain socket, mirroring
// the original rtags client/daemon split (rc talks to rdm).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rosrad/rtagsd/internal/cli"
	"github.com/rosrad/rtagsd/internal/config"
	"github.com/rosrad/rtagsd/pkg/protocol"
)

func main() {
	configPath := flag.String("config", "", "path to rtagsd's YAML config file")

	compile := flag.String("compile", "", "compiler command line to submit for indexing")
	sourceFile := flag.String("source-file", "", "source file the --compile command builds")
	projectRoot := flag.String("project", "", "project root directory")
	dirty := flag.Bool("dirty", false, "re-index an already-open file rather than a fresh compile")

	follow := flag.Bool("follow-location", false, "follow the symbol under --path:--line:--col")
	references := flag.String("references", "", "find references to the named symbol")
	list := flag.String("list-symbols", "", "list symbols matching the given prefix")
	complete := flag.Bool("complete", false, "complete the symbol under --path:--line:--col")
	rename := flag.String("rename", "", "preview renaming the named symbol to --to")
	renameTo := flag.String("to", "", "new name for --rename")
	path := flag.String("path", "", "source file a query refers to")
	line := flag.Int("line", 0, "1-based line number for a location query")
	col := flag.Int("col", 0, "1-based column number for a location query")
	limit := flag.Int("limit", 0, "maximum number of results")

	status := flag.Bool("status", false, "report the daemon's scheduling counters")

	projectAdd := flag.String("project-add", "", "register and load a project root")
	projectRemove := flag.String("project-remove", "", "unregister a project root")
	deleteSnapshot := flag.Bool("delete-snapshot", false, "with -project-remove, also delete its on-disk snapshot")
	projectList := flag.Bool("project-list", false, "list every registered project root")
	projectReload := flag.Bool("project-reload", false, "reload every known project's persisted snapshot")

	flag.Parse()

	opts, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rc:", err)
		os.Exit(1)
	}
	socketPath := cli.ExpandHome(opts.SocketPath)

	switch {
	case *compile != "":
		resp, err := cli.SendRequest(socketPath, protocol.TypeClientCompile, protocol.ClientCompileMessage{
			ProjectRoot: *projectRoot,
			SourceFile:  *sourceFile,
			Source:      *compile,
			Dirty:       *dirty,
		})
		exitOn(err)
		_ = resp

	case *follow:
		resp, err := sendQuery(socketPath, protocol.ClientQueryMessage{Kind: "follow", Path: *path, Line: *line, Col: *col})
		exitOn(err)
		printHits(resp)

	case *references != "":
		resp, err := sendQuery(socketPath, protocol.ClientQueryMessage{Kind: "references", Path: *path, Name: *references})
		exitOn(err)
		printHits(resp)

	case *list != "":
		resp, err := sendQuery(socketPath, protocol.ClientQueryMessage{Kind: "list", Path: *path, Prefix: *list, Limit: *limit})
		exitOn(err)
		printHits(resp)

	case *complete:
		resp, err := sendQuery(socketPath, protocol.ClientQueryMessage{Kind: "complete", Path: *path, Line: *line, Col: *col})
		exitOn(err)
		printHits(resp)

	case *rename != "":
		resp, err := sendQuery(socketPath, protocol.ClientQueryMessage{Kind: "rename", Path: *path, Name: *rename, NewName: *renameTo})
		exitOn(err)
		for _, d := range resp.Diffs {
			fmt.Print(d.Diff)
		}

	case *status:
		resp, err := cli.SendRequest(socketPath, protocol.TypeClientStatus, protocol.ClientStatusMessage{})
		exitOn(err)
		fmt.Printf("pending=%d in_flight=%d peers=%d\n", resp.Pending, resp.InFlight, resp.Peers)

	case *projectAdd != "":
		_, err := cli.SendRequest(socketPath, protocol.TypeClientProject, protocol.ClientProjectMessage{Op: "add", Root: *projectAdd})
		exitOn(err)

	case *projectRemove != "":
		resp, err := cli.SendRequest(socketPath, protocol.TypeClientProject, protocol.ClientProjectMessage{Op: "remove", Root: *projectRemove, Delete: *deleteSnapshot})
		exitOn(err)
		fmt.Printf("removed=%d\n", resp.Count)

	case *projectList:
		resp, err := cli.SendRequest(socketPath, protocol.TypeClientProject, protocol.ClientProjectMessage{Op: "list"})
		exitOn(err)
		for _, root := range resp.Projects {
			fmt.Println(root)
		}

	case *projectReload:
		resp, err := cli.SendRequest(socketPath, protocol.TypeClientProject, protocol.ClientProjectMessage{Op: "reload"})
		exitOn(err)
		fmt.Printf("reloaded=%d\n", resp.Count)

	default:
		fmt.Fprintln(os.Stderr, "rc: no action given; see -h")
		os.Exit(1)
	}
}

func sendQuery(socketPath string, msg protocol.ClientQueryMessage) (protocol.ClientResponseMessage, error) {
	return cli.SendRequest(socketPath, protocol.TypeClientQuery, msg)
}

func printHits(resp protocol.ClientResponseMessage) {
	for _, h := range resp.Hits {
		fmt.Printf("%s\t%s\t%s:%d:%d\n", h.Name, h.Kind, h.File, h.Line, h.Col)
	}
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "rc:", err)
		os.Exit(1)
	}
}
