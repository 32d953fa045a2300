package workday

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const restDayPath = "/getRestDeInfo"

// RegistryOptions parameterise the public-holiday registry client.
type RegistryOptions struct {
	BaseURL    string
	ServiceKey string
	Timeout    time.Duration
	MaxRetries int
}

// Registry queries the Korean public-data portal for statutory and
// substitute holidays. Lookups are month-scoped upstream and matched here on
// the exact calendar date.
type Registry struct {
	opts    RegistryOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewRegistry constructs a holiday registry client.
func NewRegistry(opts RegistryOptions, logger zerolog.Logger) *Registry {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://apis.data.go.kr/B090041/openapi/service/SpcdeInfoService"
	}

	return &Registry{
		opts:    opts,
		logger:  logger.With().Str("component", "holiday_registry").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// IsHoliday reports whether date is a public holiday, with the holiday name
// when it is. Transient failures are retried with exponential backoff;
// exhausting retries or a malformed payload surfaces as an error.
func (r *Registry) IsHoliday(ctx context.Context, date time.Time) (bool, string, error) {
	if r.opts.ServiceKey == "" {
		return false, "", errors.New("holiday registry service key not configured")
	}

	var holidays []restDay
	operation := func() error {
		var err error
		holidays, err = r.fetchMonth(ctx, date.Year(), int(date.Month()))
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retryCount(r.opts.MaxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return false, "", err
	}

	want := date.Year()*10000 + int(date.Month())*100 + date.Day()
	for _, h := range holidays {
		if h.Locdate == want && h.IsHoliday != "N" {
			return true, h.DateName, nil
		}
	}
	return false, "", nil
}

func (r *Registry) fetchMonth(ctx context.Context, year, month int) ([]restDay, error) {
	params := url.Values{}
	params.Set("serviceKey", r.opts.ServiceKey)
	params.Set("solYear", strconv.Itoa(year))
	params.Set("solMonth", fmt.Sprintf("%02d", month))
	params.Set("pageNo", "1")
	params.Set("numOfRows", "100")
	params.Set("_type", "json")

	endpoint := r.baseURL + restDayPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("holiday registry returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, backoff.Permanent(fmt.Errorf("holiday registry returned %d", resp.StatusCode))
	}

	days, err := parseRestDays(payload)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	r.logger.Debug().Int("year", year).Int("month", month).Int("holidays", len(days)).Msg("holiday month fetched")
	return days, nil
}

type restDay struct {
	Locdate   int    `json:"locdate"`
	DateName  string `json:"dateName"`
	IsHoliday string `json:"isHoliday"`
}

// restDayItems tolerates the registry's single-item quirk: one holiday in a
// month is encoded as a bare object, multiple as an array.
type restDayItems []restDay

func (r *restDayItems) UnmarshalJSON(data []byte) error {
	var many []restDay
	if err := json.Unmarshal(data, &many); err == nil {
		*r = many
		return nil
	}
	var one restDay
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*r = restDayItems{one}
	return nil
}

// restDayItemGroup tolerates an empty month, which the registry encodes as
// an empty string instead of an object.
type restDayItemGroup struct {
	Item restDayItems `json:"item"`
}

func (g *restDayItemGroup) UnmarshalJSON(data []byte) error {
	if string(data) == `""` || string(data) == "null" {
		g.Item = nil
		return nil
	}
	type plain restDayItemGroup
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*g = restDayItemGroup(decoded)
	return nil
}

type restDayResponse struct {
	Response struct {
		Header struct {
			ResultCode string `json:"resultCode"`
			ResultMsg  string `json:"resultMsg"`
		} `json:"header"`
		Body struct {
			Items      restDayItemGroup `json:"items"`
			TotalCount int              `json:"totalCount"`
		} `json:"body"`
	} `json:"response"`
	CmmMsgHeader struct {
		ReturnReasonCode string `json:"returnReasonCode"`
		ReturnAuthMsg    string `json:"returnAuthMsg"`
		ErrMsg           string `json:"errMsg"`
	} `json:"cmmMsgHeader"`
}

func parseRestDays(payload []byte) ([]restDay, error) {
	var decoded restDayResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("parse holiday payload: %w", err)
	}

	if code := decoded.CmmMsgHeader.ReturnReasonCode; code != "" {
		msg := decoded.CmmMsgHeader.ReturnAuthMsg
		if msg == "" {
			msg = decoded.CmmMsgHeader.ErrMsg
		}
		return nil, fmt.Errorf("holiday registry error (code %s): %s", code, msg)
	}

	if decoded.Response.Header.ResultCode == "" {
		return nil, errors.New("holiday registry payload missing response header")
	}
	if decoded.Response.Header.ResultCode != "00" {
		return nil, fmt.Errorf("holiday registry error: %s", decoded.Response.Header.ResultMsg)
	}

	return decoded.Response.Body.Items.Item, nil
}

func retryCount(configured int) uint64 {
	if configured <= 0 {
		return 3
	}
	return uint64(configured)
}

var _ HolidayChecker = (*Registry)(nil)
