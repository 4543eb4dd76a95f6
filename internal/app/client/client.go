package client

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

const (
	baseQuery   = "/admin/api/orders/"
	tokenHeader = "X-Upstream-Token"
)

// OrderView is the fully-fetched order with its transactions. The view lags
// real-world payment initiation by a provider-controlled delay.
type OrderView struct {
	OrderID      string               `json:"id"`
	Transactions []entity.Transaction `json:"transactions"`
}

// Client reads and updates orders on the upstream commerce platform.
type Client interface {
	GetOrderView(ctx context.Context, orderID string) (OrderView, error)
	MarkPaid(ctx context.Context, orderID string, conf entity.Confirmation) error
}

type cli struct {
	host       string
	token      string
	httpClient *http.Client
}

func NewCli(host string, token string, timeout int) Client {
	client := &http.Client{
		Timeout: time.Duration(timeout * int(time.Second)),
	}
	return &cli{
		host:       host,
		token:      token,
		httpClient: client,
	}
}

func (c *cli) GetOrderView(ctx context.Context, orderID string) (OrderView, error) {
	var view OrderView
	baseURL := c.host + baseQuery + orderID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return view, err
	}
	req.Header.Set(tokenHeader, c.token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return view, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return view, fmt.Errorf("upstream order fetch: status %d", res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return view, err
	}
	var wrapper struct {
		Order OrderView `json:"order"`
	}
	if err = json.Unmarshal(body, &wrapper); err != nil {
		return view, err
	}
	return wrapper.Order, nil
}

func (c *cli) MarkPaid(ctx context.Context, orderID string, conf entity.Confirmation) error {
	baseURL := c.host + baseQuery + orderID + "/mark_paid"
	payload, err := json.Marshal(conf)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set(tokenHeader, c.token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream mark paid: status %d", res.StatusCode)
	}
	return nil
}
