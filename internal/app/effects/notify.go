package effects

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lumaline/payrecon/internal/app/entity"
)

const smsPath = "/api/rest/sms"

type smsRequest struct {
	To      []string `json:"to"`
	From    string   `json:"from"`
	Message string   `json:"message"`
}

// Notifier sends the customer an SMS with the payment reference data.
type Notifier struct {
	host       string
	user       string
	pass       string
	sender     string
	httpClient *http.Client
}

func NewNotifier(host, user, pass, sender string, timeout int) *Notifier {
	return &Notifier{
		host:       host,
		user:       user,
		pass:       pass,
		sender:     sender,
		httpClient: &http.Client{Timeout: time.Duration(timeout * int(time.Second))},
	}
}

func (n *Notifier) Name() string { return "notify" }

func (n *Notifier) Eligible(order entity.Order) bool {
	return NormalizePhone(order.ContactPhone()) != ""
}

func (n *Notifier) Apply(ctx context.Context, order entity.Order, conf entity.Confirmation) error {
	message := fmt.Sprintf("Payment details\nEntity %s\nRef %s\nAmount %d.%02d %s",
		conf.Entity, conf.Reference, conf.Amount/100, conf.Amount%100, order.Currency)

	body := smsRequest{
		To:      []string{NormalizePhone(order.ContactPhone())},
		From:    n.sender,
		Message: message,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.host+smsPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.SetBasicAuth(n.user, n.pass)
	req.Header.Set("Content-Type", "application/json")

	res, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		errText, _ := io.ReadAll(res.Body)
		return fmt.Errorf("sms channel: status %d: %s", res.StatusCode, errText)
	}
	return nil
}
