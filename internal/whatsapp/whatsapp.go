// Package whatsapp wraps the Whatsmeow client for the live WhatsApp
// transport in BotWeave.
//
// It provides methods for sending text, image and interactive list messages
// and exposes the underlying client for event handling.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/BotWeave/BotWeave/internal/models"
	"github.com/BotWeave/BotWeave/internal/store"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

const (
	// DefaultSQLitePath is the default path for the whatsmeow SQLite database.
	DefaultSQLitePath = "/var/lib/botweave/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users.
	JIDSuffix = "s.whatsapp.net"
	// DefaultListButtonText labels the button that opens a list prompt.
	DefaultListButtonText = "Choose an option"
)

// Sender is the outbound surface of the WhatsApp client, split out so tests
// can substitute a mock.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	SendImage(ctx context.Context, to, url, caption string) error
	SendList(ctx context.Context, to, header, body string, items []models.ListItem, footer string) error
}

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow database connection string
	QRPath      string // path to write the login QR code
	NumericCode bool   // use a numeric login code instead of a QR code
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput writes the login QR code to the specified path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode uses a numeric login code instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// Client wraps the Whatsmeow client for modular use.
type Client struct {
	waClient *whatsmeow.Client
}

// NewClient creates a new WhatsApp client, connecting and running the login
// flow when the device is not yet registered.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("WhatsApp NewClient options set", "DBDSN_set", cfg.DBDSN != "", "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("No WhatsApp database DSN provided, using default SQLite path", "default_path", dbDSN)
	}

	var dbDriver string
	if store.DetectDSNType(dbDSN) == "postgres" {
		dbDriver = "postgres"
	} else {
		dbDriver = "sqlite3"
		if !strings.Contains(dbDSN, "_foreign_keys") && !strings.Contains(dbDSN, "foreign_keys") {
			slog.Warn("SQLite database for WhatsApp does not appear to have foreign keys enabled. "+
				"The whatsmeow library strongly recommends enabling foreign keys for data integrity.",
				"dsn_example", "file:"+dbDSN+"?_foreign_keys=on")
		}
	}

	logger := waLog.Stdout("Database", "INFO", true)
	ctx := context.Background()
	container, err := sqlstore.New(ctx, dbDriver, dbDSN, logger)
	if err != nil {
		slog.Error("Failed to initialize WhatsApp DB store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("Failed to get first device from store", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	clientLog := waLog.Stdout("Client", "INFO", true)
	waClient := whatsmeow.NewClient(deviceStore, clientLog)

	if waClient.Store.ID == nil {
		slog.Info("WhatsApp login required; starting QR code flow")
		qrChan, _ := waClient.GetQRChannel(context.Background())
		if err := waClient.Connect(); err != nil {
			slog.Error("Failed to connect to WhatsApp during login", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
		}
		writer := io.Writer(os.Stdout)
		if cfg.QRPath != "" {
			f, ferr := os.Create(cfg.QRPath)
			if ferr != nil {
				slog.Error("Failed to create QR file", "error", ferr)
				return nil, fmt.Errorf("failed to create QR file: %w", ferr)
			}
			defer f.Close()
			writer = f
		}
		for evt := range qrChan {
			if evt.Event == "code" {
				if cfg.NumericCode {
					fmt.Fprintln(writer, evt.Code)
				} else {
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
				}
			} else {
				slog.Debug("WhatsApp login event", "event", evt.Event)
			}
		}
	} else {
		slog.Debug("WhatsApp already logged in, connecting to server")
		if err := waClient.Connect(); err != nil {
			slog.Error("Failed to connect to WhatsApp server", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
	}
	slog.Info("WhatsApp client connected successfully")
	return &Client{waClient: waClient}, nil
}

func (c *Client) send(ctx context.Context, to string, msg *waE2E.Message) error {
	if c.waClient == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	jid := types.NewJID(to, JIDSuffix)
	if _, err := c.waClient.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	return nil
}

// SendText sends a plain text WhatsApp message.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}
	slog.Debug("WhatsApp SendText", "to", to, "body_length", len(body))
	return c.send(ctx, to, &waE2E.Message{Conversation: &body})
}

// SendImage sends an image as a captioned link. Media upload is not wired;
// WhatsApp renders a preview for the URL.
func (c *Client) SendImage(ctx context.Context, to, url, caption string) error {
	if url == "" {
		return fmt.Errorf("image url cannot be empty")
	}
	body := url
	if caption != "" {
		body = caption + "\n" + url
	}
	slog.Debug("WhatsApp SendImage", "to", to, "url", url)
	return c.send(ctx, to, &waE2E.Message{Conversation: &body})
}

// SendList sends an interactive single-select list prompt.
func (c *Client) SendList(ctx context.Context, to, header, body string, items []models.ListItem, footer string) error {
	if len(items) == 0 {
		return fmt.Errorf("list items cannot be empty")
	}
	rows := make([]*waE2E.ListMessage_Row, 0, len(items))
	for _, item := range items {
		rows = append(rows, &waE2E.ListMessage_Row{
			RowID: proto.String(item.ID),
			Title: proto.String(item.Title),
		})
	}
	list := &waE2E.ListMessage{
		Title:       proto.String(header),
		Description: proto.String(body),
		ButtonText:  proto.String(DefaultListButtonText),
		ListType:    waE2E.ListMessage_SINGLE_SELECT.Enum(),
		Sections: []*waE2E.ListMessage_Section{{
			Title: proto.String(header),
			Rows:  rows,
		}},
	}
	if footer != "" {
		list.FooterText = proto.String(footer)
	}
	slog.Debug("WhatsApp SendList", "to", to, "items", len(items))
	return c.send(ctx, to, &waE2E.Message{ListMessage: list})
}

// GetClient returns the underlying whatsmeow client for event handling.
func (c *Client) GetClient() *whatsmeow.Client {
	return c.waClient
}

// Disconnect closes the connection to WhatsApp.
func (c *Client) Disconnect() {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
}

// MockClient implements Sender without a real WhatsApp connection. It
// records sent messages for assertions. Safe for concurrent use; the
// dispatcher sends from worker goroutines.
type MockClient struct {
	mu     sync.Mutex
	texts  []string
	images []string
	lists  []string
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendText(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, body)
	return nil
}

func (m *MockClient) SendImage(ctx context.Context, to, url, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images = append(m.images, url)
	return nil
}

func (m *MockClient) SendList(ctx context.Context, to, header, body string, items []models.ListItem, footer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists = append(m.lists, header)
	return nil
}

// SentTexts returns the bodies of all text messages sent so far.
func (m *MockClient) SentTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.texts))
	copy(out, m.texts)
	return out
}

// SentImages returns the URLs of all image messages sent so far.
func (m *MockClient) SentImages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.images))
	copy(out, m.images)
	return out
}

// SentLists returns the headers of all list messages sent so far.
func (m *MockClient) SentLists() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.lists))
	copy(out, m.lists)
	return out
}
