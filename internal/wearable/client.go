// Package wearable pulls daily health metrics and activities from the
// wearable vendor API and stores them as biometric readings.
package wearable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

var (
	ErrUnauthorized = errors.New("wearable token rejected")
	ErrNoFile       = errors.New("activity export not available")
)

// maxBody caps a single API response; GPX exports of long rides stay well below it.
const maxBody = 32 << 20

// DailyMetrics is the vendor's daily wellness summary.
type DailyMetrics struct {
	Day         time.Time
	HRVAverage  *float64
	StressLevel *float64
	BodyBattery *float64
	SleepScore  *float64
	Raw         []byte
}

type Activity struct {
	ID             string
	StartTime      time.Time
	Device         string
	Type           string
	Duration       *int
	Distance       *float64
	ElevationGain  *float64
	AvgSpeed       *float64
	MaxSpeed       *float64
	AvgHeartRate   *int
	MaxHeartRate   *int
	Calories       *int
	VO2Max         *float64
	RecoveryTime   *int
	TrainingEffect *float64
	HasTrack       bool
	Raw            []byte
}

type Profile struct {
	Email       string
	DisplayName string
}

// Client is an authenticated view of the vendor API for one account.
type Client interface {
	Profile(ctx context.Context) (*Profile, error)
	DailyMetrics(ctx context.Context, day time.Time) (*DailyMetrics, error)
	Activities(ctx context.Context, start, limit int) ([]Activity, error)
	ActivityFile(ctx context.Context, activityID, format string) ([]byte, error)
}

// Dialer opens a Client for an access token.
type Dialer interface {
	Dial(ctx context.Context, token string) (Client, error)
}

// HTTPDialer builds HTTPClients sharing one request limiter.
type HTTPDialer struct {
	BaseURL string
	Limiter *rate.Limiter
	Timeout time.Duration
}

func (d HTTPDialer) Dial(ctx context.Context, token string) (Client, error) {
	return NewHTTPClient(ctx, d.BaseURL, token, d.Limiter, d.Timeout)
}

// HTTPClient talks to the vendor REST API with a bearer token.
type HTTPClient struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
}

func NewHTTPClient(ctx context.Context, baseURL, token string, limiter *rate.Limiter, timeout time.Duration) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse wearable base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	return &HTTPClient{base: base, http: hc, limiter: limiter}, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	u := *c.base
	u.Path += path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("GET %s: %w", path, errNotFound)
	case resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return body, nil
}

var errNotFound = errors.New("not found")

func (c *HTTPClient) Profile(ctx context.Context) (*Profile, error) {
	body, err := c.get(ctx, "/profile", nil)
	if err != nil {
		return nil, err
	}
	res := gjson.ParseBytes(body)
	return &Profile{
		Email:       res.Get("email").String(),
		DisplayName: res.Get("displayName").String(),
	}, nil
}

func (c *HTTPClient) DailyMetrics(ctx context.Context, day time.Time) (*DailyMetrics, error) {
	date := day.Format("2006-01-02")
	body, err := c.get(ctx, "/wellness/daily/"+date, nil)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("daily metrics %s: invalid json", date)
	}
	res := gjson.ParseBytes(body)
	return &DailyMetrics{
		Day:         day,
		HRVAverage:  optFloat(res.Get("hrvSummary.lastNightAvg")),
		StressLevel: optFloat(res.Get("averageStressLevel")),
		BodyBattery: optFloat(res.Get("bodyBatteryChargedValue")),
		SleepScore:  optFloat(res.Get("sleepScores.overall.value")),
		Raw:         body,
	}, nil
}

// activityTimeLayout is the vendor's GMT timestamp format.
const activityTimeLayout = "2006-01-02 15:04:05"

func (c *HTTPClient) Activities(ctx context.Context, start, limit int) ([]Activity, error) {
	q := url.Values{}
	q.Set("start", strconv.Itoa(start))
	q.Set("limit", strconv.Itoa(limit))
	body, err := c.get(ctx, "/activities", q)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("activities: invalid json")
	}

	var out []Activity
	for _, a := range gjson.ParseBytes(body).Array() {
		id := a.Get("activityId").String()
		if id == "" {
			continue
		}
		started, err := time.ParseInLocation(activityTimeLayout, a.Get("startTimeGMT").String(), time.UTC)
		if err != nil {
			return nil, fmt.Errorf("activity %s start time: %w", id, err)
		}
		out = append(out, Activity{
			ID:             id,
			StartTime:      started,
			Device:         a.Get("deviceName").String(),
			Type:           a.Get("activityType.typeKey").String(),
			Duration:       optInt(a.Get("duration")),
			Distance:       optFloat(a.Get("distance")),
			ElevationGain:  optFloat(a.Get("elevationGain")),
			AvgSpeed:       optFloat(a.Get("averageSpeed")),
			MaxSpeed:       optFloat(a.Get("maxSpeed")),
			AvgHeartRate:   optInt(a.Get("averageHR")),
			MaxHeartRate:   optInt(a.Get("maxHR")),
			Calories:       optInt(a.Get("calories")),
			VO2Max:         optFloat(a.Get("vO2MaxValue")),
			RecoveryTime:   optInt(a.Get("recoveryTimeInMinutes")),
			TrainingEffect: optFloat(a.Get("aerobicTrainingEffect")),
			HasTrack:       a.Get("hasPolyline").Bool(),
			Raw:            []byte(a.Raw),
		})
	}
	return out, nil
}

func (c *HTTPClient) ActivityFile(ctx context.Context, activityID, format string) ([]byte, error) {
	body, err := c.get(ctx, "/activities/"+url.PathEscape(activityID)+"/export/"+format, nil)
	if errors.Is(err, errNotFound) {
		return nil, ErrNoFile
	}
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, ErrNoFile
	}
	return body, nil
}

func optFloat(r gjson.Result) *float64 {
	if r.Type != gjson.Number {
		return nil
	}
	v := r.Float()
	return &v
}

func optInt(r gjson.Result) *int {
	if r.Type != gjson.Number {
		return nil
	}
	v := int(math.Round(r.Float()))
	return &v
}
