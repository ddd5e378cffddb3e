package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
	"github.com/ysmood/gson"
)

// PDFRenderer converts HTML markup into a PDF document.
type PDFRenderer interface {
	RenderPDF(ctx context.Context, html []byte) ([]byte, error)
}

// Paper geometry in inches, as Chrome's print API expects.
const (
	a4Width      = 8.27
	a4Height     = 11.69
	marginTopBot = 20.0 / 25.4
	marginSides  = 15.0 / 25.4
)

// PrintOptions returns the A4 print settings used for every report.
func PrintOptions() *proto.PagePrintToPDF {
	return &proto.PagePrintToPDF{
		PrintBackground: true,
		PaperWidth:      gson.Num(a4Width),
		PaperHeight:     gson.Num(a4Height),
		MarginTop:       gson.Num(marginTopBot),
		MarginBottom:    gson.Num(marginTopBot),
		MarginLeft:      gson.Num(marginSides),
		MarginRight:     gson.Num(marginSides),
	}
}

// RodConfig controls how the headless browser is obtained.
type RodConfig struct {
	// ControlURL attaches to a running Chrome instead of launching one.
	ControlURL string
	// Bin is the Chrome executable; empty lets the launcher find or fetch one.
	Bin       string
	NoSandbox bool
	Timeout   time.Duration
}

// RodRenderer prints HTML through a headless Chrome. The browser is started
// on first use and shared by all renders; each render gets its own page.
type RodRenderer struct {
	cfg    RodConfig
	logger zerolog.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewRodRenderer returns a renderer; no browser is started until RenderPDF.
func NewRodRenderer(cfg RodConfig, logger zerolog.Logger) *RodRenderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &RodRenderer{
		cfg:    cfg,
		logger: logger.With().Str("component", "pdf").Logger(),
	}
}

func (r *RodRenderer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		if _, err := r.browser.Version(); err == nil {
			return r.browser, nil
		}
		r.logger.Warn().Msg("stale browser connection, relaunching")
		r.shutdownLocked()
	}

	controlURL := r.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(true).NoSandbox(r.cfg.NoSandbox)
		if r.cfg.Bin != "" {
			l = l.Bin(r.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		r.launcher = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if r.launcher != nil {
			r.launcher.Kill()
			r.launcher = nil
		}
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	r.browser = browser
	r.logger.Info().Bool("attached", r.cfg.ControlURL != "").Msg("headless chrome ready")
	return browser, nil
}

// RenderPDF loads html into a fresh page with screen media emulation and
// prints it as A4.
func (r *RodRenderer) RenderPDF(ctx context.Context, html []byte) ([]byte, error) {
	browser, err := r.ensureBrowser()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			r.logger.Debug().Err(cerr).Msg("close page")
		}
	}()

	if err := (proto.EmulationSetEmulatedMedia{Media: "screen"}).Call(page); err != nil {
		return nil, fmt.Errorf("emulate screen media: %w", err)
	}
	if err := page.SetDocumentContent(string(html)); err != nil {
		return nil, fmt.Errorf("load report markup: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait for report load: %w", err)
	}

	stream, err := page.PDF(PrintOptions())
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("read pdf stream: %w", err)
	}
	return data, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shutdownLocked()
}

func (r *RodRenderer) shutdownLocked() error {
	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	if r.launcher != nil {
		r.launcher.Cleanup()
		r.launcher = nil
	}
	return err
}
