package notifier

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/shopspring/decimal"

	"github.com/paperbot/engine/internal/logger"
)

// SoundSink plays a system notification sound per event, ported from the
// original paper-trading engine's SoundNotifier (macOS afplay/say, Linux
// espeak/beep). Enabled via PAPER_SOUND_ENABLED; TTS phrasing via
// PAPER_SOUND_TTS.
type SoundSink struct {
	useTTS bool
	goos   string
	log    *logger.Logger
}

func NewSoundSink(useTTS bool) *SoundSink {
	return &SoundSink{useTTS: useTTS, goos: runtime.GOOS, log: logger.NewLogger("notify_sound")}
}

func (s *SoundSink) Send(evt Event) {
	switch evt.Type {
	case EventPositionOpened:
		s.play("Glass", fmt.Sprintf("opened a %s position on %s", evt.Side, evt.Symbol))
	case EventPositionClosedProfit:
		s.play("Glass", fmt.Sprintf("closed %s for a profit of %s dollars", evt.Symbol, formatAbs(evt.PnL)))
	case EventPositionClosedLoss:
		s.play("Basso", fmt.Sprintf("closed %s for a loss of %s dollars", evt.Symbol, formatAbs(evt.PnL)))
	}
}

func formatAbs(d decimal.Decimal) string {
	return d.Abs().StringFixed(2)
}

func (s *SoundSink) play(soundName, speech string) {
	var cmd *exec.Cmd
	switch s.goos {
	case "darwin":
		if s.useTTS {
			cmd = exec.Command("say", speech)
		} else {
			cmd = exec.Command("afplay", "/System/Library/Sounds/"+soundName+".aiff")
		}
	case "linux":
		if s.useTTS {
			cmd = exec.Command("espeak", speech)
		} else {
			cmd = exec.Command("beep")
		}
	default:
		return
	}
	if err := cmd.Start(); err != nil {
		s.log.Debug("sound playback unavailable", "error", err.Error())
		return
	}
	go cmd.Wait()
}
