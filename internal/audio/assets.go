package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"versusmatch/internal/ports"
)

// AssetPlayer plays numbered partner responses stored as <dir>/<id>.mp3.
type AssetPlayer struct {
	dir     string
	command string
}

func NewAssetPlayer(dir string, command string) *AssetPlayer {
	if command == "" {
		command = "ffplay"
	}
	return &AssetPlayer{dir: dir, command: command}
}

// Path returns the file backing assetID.
func (a *AssetPlayer) Path(assetID int) string {
	return filepath.Join(a.dir, fmt.Sprintf("%d.mp3", assetID))
}

// PlayAsset starts playback and reports Started at once. Exactly one of Ended
// or Failed follows unless the returned stop func runs first.
func (a *AssetPlayer) PlayAsset(ctx context.Context, assetID int, events ports.AssetEvents) (func(), error) {
	path := a.Path(assetID)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("response asset %d: %w", assetID, err)
	}

	args := []string{"-nodisp", "-autoexit", "-hide_banner", "-loglevel", "warning", path}
	proc, err := startProcess(ctx, a.command, args, nil)
	if err != nil {
		return nil, err
	}

	if events.Started != nil {
		events.Started()
	}
	go func() {
		err := proc.wait()
		if proc.wasStopped() {
			return
		}
		if err != nil {
			if events.Failed != nil {
				events.Failed(fmt.Errorf("response asset %d: %w", assetID, err))
			}
			return
		}
		if events.Ended != nil {
			events.Ended()
		}
	}()

	var once sync.Once
	return func() { once.Do(proc.stop) }, nil
}
