package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
)

var addr = kingpin.Flag("addr", "address of the poorly-server to connect to").Default("http://localhost:4780").String()

func main() {
	kingpin.CommandLine.HelpFlag.Short('h')
	kingpin.Parse()

	rl, err := readline.New(color.CyanString("poorly> "))
	if err != nil {
		fmt.Println(err)
		return
	}
	defer rl.Close()

	client := newAPIClient(*addr)
	fmt.Println("poorly shell, connected to", *addr)
	fmt.Println("commands: Select Insert Update Delete Create Drop CreateDb DropDb Alter ShowTables Join, or exit")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			fmt.Println(err)
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}

		rows, err := dispatch(line, client)
		if err != nil {
			color.Red("error: %v", err)
			continue
		}
		printRows(rows)
	}
}
