package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/teraleech/internal/chat"
	"github.com/tanq16/teraleech/internal/utils"
)

var _ chat.Transport = (*Console)(nil)

// Console is a chat.Transport for local runs. Status messages go to the
// terminal and delivered files are copied into an output directory.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	outDir  string
	manager *Manager
	nextID  int
	last    map[int]string
}

func NewConsole(outDir string, w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{out: w, outDir: outDir, last: make(map[int]string)}
}

// WithManager routes status messages to a live board instead of printing
// each edit.
func (c *Console) WithManager(m *Manager) *Console {
	c.manager = m
	return c
}

func (c *Console) OutDir() string {
	return c.outDir
}

func (c *Console) allocate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	return c.nextID
}

func (c *Console) SendText(ctx context.Context, chatID int64, text string) (chat.MessageRef, error) {
	id := c.allocate()
	if c.manager != nil {
		c.manager.Register(id, text)
	} else {
		c.print(id, text)
	}
	return chat.MessageRef{ChatID: chatID, MessageID: id}, nil
}

func (c *Console) EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error {
	if c.manager != nil {
		c.manager.SetMessage(messageID, text)
		return nil
	}
	c.print(messageID, text)
	return nil
}

// print writes a status message unless it repeats the previous text of the
// same message.
func (c *Console) print(id int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last[id] == text {
		return
	}
	c.last[id] = text
	head, detail := splitStatus(text)
	var styled string
	switch statusKind(text) {
	case "success":
		styled = successStyle.Render(head)
	case "error":
		styled = errorStyle.Render(head)
	default:
		styled = pendingStyle.Render(head)
	}
	fmt.Fprintf(c.out, "%s %s\n", debugStyle.Render(fmt.Sprintf("[%d]", id)), styled)
	for _, line := range detail {
		fmt.Fprintf(c.out, "    %s\n", streamStyle.Render(truncate(line, 4)))
	}
}

func (c *Console) SendVideo(ctx context.Context, chatID int64, file chat.File, caption string, streaming bool) (chat.MessageRef, error) {
	return c.deliver(ctx, chatID, file, caption, StyleSymbols["video"])
}

func (c *Console) SendDocument(ctx context.Context, chatID int64, file chat.File, caption string) (chat.MessageRef, error) {
	return c.deliver(ctx, chatID, file, caption, StyleSymbols["file"])
}

func (c *Console) deliver(ctx context.Context, chatID int64, file chat.File, caption, symbol string) (chat.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return chat.MessageRef{}, err
	}
	if err := os.MkdirAll(c.outDir, 0755); err != nil {
		return chat.MessageRef{}, fmt.Errorf("error creating output dir: %w", err)
	}
	c.mu.Lock()
	dest := freePath(filepath.Join(c.outDir, utils.SanitizeFileName(file.Name)))
	// reserve the name before releasing the lock
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	c.mu.Unlock()
	if err != nil {
		return chat.MessageRef{}, fmt.Errorf("error creating %s: %w", dest, err)
	}
	size, err := copyFrom(f, file.Path)
	if err != nil {
		os.Remove(dest)
		return chat.MessageRef{}, err
	}
	id := c.allocate()
	if c.manager == nil {
		line := fmt.Sprintf("%s %s %s %s", successStyle.Render(symbol), file.Name, StyleSymbols["arrow"], dest)
		fmt.Fprintf(c.out, "%s %s %s\n", debugStyle.Render(fmt.Sprintf("[%d]", id)), line, debugStyle.Render(utils.FormatBytes(uint64(size))))
		if caption != "" {
			fmt.Fprintf(c.out, "    %s\n", streamStyle.Render(strings.ReplaceAll(caption, "\n", " ")))
		}
	}
	log.Debug().Str("op", "output/console").Msgf("delivered %s to %s", file.Name, dest)
	return chat.MessageRef{ChatID: chatID, MessageID: id}, nil
}

func copyFrom(dst *os.File, src string) (int64, error) {
	defer dst.Close()
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("error opening %s: %w", src, err)
	}
	defer in.Close()
	n, err := io.Copy(dst, in)
	if err != nil {
		return n, fmt.Errorf("error copying %s: %w", src, err)
	}
	return n, dst.Sync()
}

func (c *Console) CopyMessage(ctx context.Context, toChatID int64, from chat.MessageRef) (chat.MessageRef, error) {
	id := c.allocate()
	if c.manager == nil {
		fmt.Fprintf(c.out, "%s %s\n", debugStyle.Render(fmt.Sprintf("[%d]", id)),
			streamStyle.Render(fmt.Sprintf("copy of message %d %s chat %d", from.MessageID, StyleSymbols["arrow"], toChatID)))
	}
	return chat.MessageRef{ChatID: toChatID, MessageID: id}, nil
}

// freePath appends " (n)" before the extension until the name is unused.
func freePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
