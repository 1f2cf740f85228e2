package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	cli "github.com/spf13/pflag"

	"gideon/internal/ipc"
)

const usage = `usage: gideon-ctl [flags] <command> [text]

commands:
  status             health snapshot per component
  stats              exchange and recognition counters
  probe              run a health probe round now
  recalibrate        rescan devices and remeasure the noise floor
  ask <text>         get a reply without speaking
  say <text>         speak text through the output sink
  transcribe -f FILE run an audio file through speech-to-text
  shutdown           stop the daemon`

func main() {
	socket := cli.StringP("socket", "s", "", "Control socket path")
	file := cli.StringP("file", "f", "", "Audio file for transcribe")
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	req := ipc.Request{Cmd: args[0], Path: *file}
	if len(args) > 1 {
		req.Text = strings.Join(args[1:], " ")
	}

	resp, err := ipc.Send(*socket, req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gideon-daemon not running:", err)
		os.Exit(1)
	}
	if !resp.OK {
		fmt.Fprintln(os.Stderr, "error:", resp.Error)
		os.Exit(1)
	}
	if len(resp.Data) > 0 {
		var out bytes.Buffer
		if err := json.Indent(&out, resp.Data, "", "  "); err != nil {
			fmt.Println(string(resp.Data))
			return
		}
		fmt.Println(out.String())
	}
}
