package bot

import (
	"context"
	"encoding/json"
	"errors"
	"html"

	"voltfarm/internal/domain"
	"voltfarm/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// StarsCurrency is Telegram Stars. Stars invoices carry no provider token.
const StarsCurrency = "XTR"

// Client wraps the Bot API for outgoing calls: notifications and invoice links.
type Client struct {
	api *tgbotapi.BotAPI
}

func NewClient(token string) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Client{api: api}, nil
}

func (c *Client) Username() string { return c.api.Self.UserName }

// Notify sends n to the user's private chat.
func (c *Client) Notify(_ context.Context, userID int64, n service.Notification) error {
	return c.SendNotification(userID, html.EscapeString(n.Text))
}

// SendNotification sends a notification to a specific user
func (c *Client) SendNotification(tgID int64, message string) error {
	msg := tgbotapi.NewMessage(tgID, message)
	msg.ParseMode = "HTML"
	_, err := c.api.Send(msg)
	return err
}

// CreateInvoiceLink asks Telegram for a Stars payment link. The invoice id
// is the payload echoed back on pre_checkout_query and successful_payment.
func (c *Client) CreateInvoiceLink(_ context.Context, inv *domain.Invoice, title string) (string, error) {
	params, err := invoiceParams(inv, title)
	if err != nil {
		return "", err
	}

	resp, err := c.api.MakeRequest("createInvoiceLink", params)
	if err != nil {
		return "", err
	}

	var link string
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", err
	}
	if link == "" {
		return "", errors.New("empty invoice link")
	}
	return link, nil
}

func invoiceParams(inv *domain.Invoice, title string) (tgbotapi.Params, error) {
	params := tgbotapi.Params{}
	params.AddNonEmpty("title", title)
	params.AddNonEmpty("description", "VoltFarm upgrade: "+title)
	params.AddNonEmpty("payload", inv.ID)
	params.AddNonEmpty("currency", StarsCurrency)
	err := params.AddInterface("prices", []tgbotapi.LabeledPrice{
		{Label: title, Amount: int(inv.PriceStars)},
	})
	return params, err
}

var _ service.Notifier = (*Client)(nil)
var _ service.InvoiceProvider = (*Client)(nil)
