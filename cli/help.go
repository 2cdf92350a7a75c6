// Copyright (c) 2023, The KLEM Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package cli

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/mitchellh/go-wordwrap"
	"golang.org/x/term"

	"github.com/klemu/klem/logger"
)

//go:embed README.md
var referenceDoc string

const (
	defaultTermWidth = 80
	helpIndent       = "  "
)

var (
	sectionPattern = regexp.MustCompile(`^###\s+(\S+)`)
	anchorPattern  = regexp.MustCompile(`\(#[a-z-]+\)`)
)

// helpTopic is the reference section of one command.
type helpTopic struct {
	summary string
	lines   []string
}

// Help renders the command reference embedded from README.md.
type Help struct {
	topics map[string]*helpTopic
	names  []string
}

func newHelp() Help {
	h := Help{topics: map[string]*helpTopic{}}
	h.load(referenceDoc)
	return h
}

// load splits the reference into "### <command>" sections. Fenced blocks become the
// Definition and Example paragraphs.
func (help *Help) load(doc string) {
	var cur *helpTopic
	indent := ""
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		if m := sectionPattern.FindStringSubmatch(line); m != nil {
			cur = &helpTopic{}
			help.topics[m[1]] = cur
			help.names = append(help.names, m[1])
			indent = ""
			continue
		}
		if cur == nil || line == "" {
			continue
		}
		switch line {
		case "```shell":
			cur.lines = append(cur.lines, "", "Definition:")
			indent = helpIndent
			continue
		case "```bash":
			cur.lines = append(cur.lines, "", "Example:")
			indent = helpIndent
			continue
		case "```":
			indent = ""
			continue
		}
		text := stripMarkdown(line)
		if cur.summary == "" && indent == "" {
			cur.summary = firstSentence(text)
		}
		cur.lines = append(cur.lines, indent+text)
	}
	sort.Strings(help.names)
}

func firstSentence(s string) string {
	if i := strings.Index(s, ". "); i > 0 {
		return s[:i+1]
	}
	return s
}

func stripMarkdown(s string) string {
	s = strings.NewReplacer("\\", "", "`", "").Replace(s)
	return anchorPattern.ReplaceAllString(s, "")
}

func termWidth() uint {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return defaultTermWidth
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		logger.Warnf("could not get terminal size: %v", err)
		return defaultTermWidth
	}
	return uint(w)
}

// outputGeneralHelp lists every command with the first sentence of its description.
func (help *Help) outputGeneralHelp() string {
	var sb strings.Builder
	for _, name := range help.names {
		fmt.Fprintf(&sb, "%-12s %s\n", name, help.topics[name].summary)
	}
	sb.WriteString(wordwrap.WrapString("\nFor detailed help per command, use: 'help <command>'", termWidth()))
	sb.WriteString("\n")
	return sb.String()
}

func (help *Help) outputCommandHelp(name string) string {
	topic, ok := help.topics[name]
	if !ok {
		return fmt.Sprintf("%s\n%s(Non-existent command.)\n", name, helpIndent)
	}

	width := termWidth() - uint(len(helpIndent))
	var sb strings.Builder
	sb.WriteString(name + "\n")
	for _, line := range topic.lines {
		if strings.HasPrefix(line, helpIndent) {
			// definitions and examples are not wrapped
			sb.WriteString(helpIndent + line + "\n")
			continue
		}
		for _, w := range strings.Split(wordwrap.WrapString(line, width), "\n") {
			sb.WriteString(helpIndent + w + "\n")
		}
	}
	return sb.String()
}
