package main

import (
	"fmt"
	"io"
	"strings"

	"connected/internal/chat"
	"connected/pkg/types"
)

// printer writes each confirmed message once, in view order
type printer struct {
	out     io.Writer
	self    string
	printed map[string]bool
}

func newPrinter(out io.Writer, self string) *printer {
	return &printer{out: out, self: types.NormalizeEmail(self), printed: make(map[string]bool)}
}

func (p *printer) render(view chat.View) {
	for _, entry := range view.Entries {
		if entry.Pending || p.printed[entry.Message.ID] {
			continue
		}
		p.printed[entry.Message.ID] = true

		who := entry.Message.Sender
		if strings.EqualFold(who, p.self) {
			who = "you"
		}
		fmt.Fprintf(p.out, "[%s] %s: %s\n", entry.Message.CreatedAt.Local().Format("15:04"), who, entry.Message.Content)
	}
}
