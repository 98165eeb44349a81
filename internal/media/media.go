// Package media stores inbound attachments and runs image scanners over
// them. It plugs into the flow engine as its media handler.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/e2g-ufsm/flowbot/internal/models"
	"github.com/e2g-ufsm/flowbot/internal/util"
)

// DefaultDir is where attachments are stored when no directory is configured.
const DefaultDir = "/var/lib/flowbot/media"

// Fetcher retrieves the raw bytes of an attachment referenced by an inbound
// message. Each channel resolves its own media references.
type Fetcher interface {
	FetchMedia(ctx context.Context, msg models.Message) (data []byte, ext string, err error)
}

// Scanner inspects a stored image and reports a detected payload, such as
// the contents of a QR code.
type Scanner interface {
	ScanImage(data []byte) (payload string, found bool)
}

// NotifyFunc delivers a scanner finding back to the sender.
type NotifyFunc func(ctx context.Context, msg models.Message, body string) error

// Pipeline fetches, stores and scans attachments.
type Pipeline struct {
	dir      string
	fetchers map[models.Channel]Fetcher
	scanners []Scanner
	notify   NotifyFunc
}

// NewPipeline creates a pipeline storing attachments under dir. An empty dir
// falls back to DefaultDir.
func NewPipeline(dir string, notify NotifyFunc) *Pipeline {
	if dir == "" {
		dir = DefaultDir
	}
	return &Pipeline{
		dir:      dir,
		fetchers: make(map[models.Channel]Fetcher),
		notify:   notify,
	}
}

// RegisterFetcher installs the media fetcher for a channel.
func (p *Pipeline) RegisterFetcher(channel models.Channel, f Fetcher) {
	p.fetchers[channel] = f
}

// AddScanner appends an image scanner. Scanners run in registration order.
func (p *Pipeline) AddScanner(s Scanner) {
	p.scanners = append(p.scanners, s)
}

// HandleMedia fetches the attachment, writes it to the media directory and
// runs every scanner over it. Scanner findings are reported back to the
// sender when a notifier is configured.
func (p *Pipeline) HandleMedia(ctx context.Context, msg models.Message) error {
	fetcher, ok := p.fetchers[msg.Channel]
	if !ok {
		slog.Debug("Media Pipeline no fetcher for channel", "channel", msg.Channel)
		return nil
	}

	data, ext, err := fetcher.FetchMedia(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to fetch media for %s: %w", msg.ChannelUserID, err)
	}
	if ext == "" {
		ext = ".jpg"
	}

	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return fmt.Errorf("failed to create media directory %s: %w", p.dir, err)
	}
	path := filepath.Join(p.dir, util.GenerateMediaID()+ext)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write media file %s: %w", path, err)
	}
	slog.Info("Media Pipeline stored attachment", "path", path, "bytes", len(data), "channel", msg.Channel)

	for _, scanner := range p.scanners {
		payload, found := scanner.ScanImage(data)
		if !found {
			continue
		}
		slog.Info("Media Pipeline scanner finding", "channelUserID", msg.ChannelUserID, "payload", payload)
		if p.notify != nil {
			if err := p.notify(ctx, msg, fmt.Sprintf("QR Code detectado: %s", payload)); err != nil {
				slog.Error("Media Pipeline failed to notify sender", "error", err, "channelUserID", msg.ChannelUserID)
			}
		}
	}
	return nil
}
