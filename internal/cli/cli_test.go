package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/automarket/internal/forms"
	"github.com/rcliao/automarket/internal/gateway"
	"github.com/rcliao/automarket/internal/mockapi"
	"github.com/rcliao/automarket/internal/model"
	"github.com/rcliao/automarket/internal/paginate"
	"github.com/rcliao/automarket/internal/transcript"
)

type staticToken string

func (s staticToken) Token(context.Context) string { return string(s) }

func summaries(n int) []model.ProductSummary {
	out := make([]model.ProductSummary, n)
	for i := range out {
		out[i] = model.ProductSummary{ID: fmt.Sprint(i + 1), Name: fmt.Sprintf("Product %d", i+1)}
	}
	return out
}

func newSync(t *testing.T, items []model.ProductSummary, size int) *paginate.Synchronizer[model.ProductSummary] {
	t.Helper()
	s, err := paginate.New[model.ProductSummary](func(context.Context) ([]model.ProductSummary, error) {
		return items, nil
	}, size)
	require.NoError(t, err)
	return s
}

func TestUserMessage(t *testing.T) {
	verr := forms.Login{}.Validate()
	require.Equal(t, forms.MsgEmailRequired, userMessage(verr))

	appErr := &gateway.ApplicationError{StatusCode: 400, Message: "Product not found"}
	require.Equal(t, "Product not found", userMessage(fmt.Errorf("wrapped: %w", appErr)))

	require.Equal(t, gateway.NoticeNetwork, userMessage(&gateway.TransportError{Err: errors.New("dial")}))
	require.Equal(t, "disk full", userMessage(errors.New("disk full")))
}

func TestOutput(t *testing.T) {
	defer func(f string) { formatFlag = f }(formatFlag)
	text := func(w io.Writer) { fmt.Fprintln(w, "plain") }

	var buf bytes.Buffer
	formatFlag = "json"
	output(&buf, map[string]int{"n": 1}, text)
	require.JSONEq(t, `{"n": 1}`, buf.String())

	buf.Reset()
	formatFlag = "text"
	output(&buf, map[string]int{"n": 1}, text)
	require.Equal(t, "plain\n", buf.String())

	// Without a text renderer JSON is printed anyway.
	buf.Reset()
	output(&buf, []int{1, 2}, nil)
	require.JSONEq(t, `[1, 2]`, buf.String())
}

func TestRevealPages(t *testing.T) {
	s := newSync(t, summaries(25), 10)
	require.NoError(t, revealPages(context.Background(), s, 2))
	require.Len(t, s.Visible(), 20)
	require.True(t, s.HasMore())

	s = newSync(t, summaries(25), 10)
	require.NoError(t, revealPages(context.Background(), s, -1))
	require.Len(t, s.Visible(), 25)
	require.False(t, s.HasMore())
}

func TestRevealPages_LoadError(t *testing.T) {
	s, err := paginate.New[model.ProductSummary](func(context.Context) ([]model.ProductSummary, error) {
		return nil, errors.New("boom")
	}, 10)
	require.NoError(t, err)
	require.ErrorContains(t, revealPages(context.Background(), s, 1), "boom")
	require.True(t, s.HasMore())
}

func TestBrowseProducts(t *testing.T) {
	s := newSync(t, summaries(25), 10)
	var out bytes.Buffer
	err := browseProducts(context.Background(), s, strings.NewReader("\n\n"), &out, testNow)
	require.NoError(t, err)

	got := out.String()
	require.Contains(t, got, "Product 1 ")
	require.Contains(t, got, "Product 25")
	require.Equal(t, 2, strings.Count(got, "Enter for more"))
	require.Contains(t, got, "-- 10 of 25")
	require.Contains(t, got, "-- 20 of 25")
}

func TestBrowseProducts_Quit(t *testing.T) {
	s := newSync(t, summaries(25), 10)
	var out bytes.Buffer
	require.NoError(t, browseProducts(context.Background(), s, strings.NewReader("q\n"), &out, testNow))
	require.Len(t, s.Visible(), 10)
	require.NotContains(t, out.String(), "Product 11")
}

func TestBrowseProducts_Empty(t *testing.T) {
	s := newSync(t, nil, 10)
	var out bytes.Buffer
	require.NoError(t, browseProducts(context.Background(), s, strings.NewReader(""), &out, testNow))
	require.Equal(t, MsgNoProducts+"\n", out.String())
}

func TestRows_LockStatus(t *testing.T) {
	marketed := testNow.AddDate(0, 0, -3)
	rs := rows([]model.ProductSummary{
		{ID: "1", Name: "Fresh"},
		{ID: "2", Name: "Recent", MarketingDate: &marketed},
	}, testNow)
	require.False(t, rs[0].Locked)
	require.True(t, rs[1].Locked)
	require.Equal(t, 7, rs[1].DaysLeft)

	var out bytes.Buffer
	printRows(&out, rs)
	require.Contains(t, out.String(), "locked (7 days left)")
	require.Contains(t, out.String(), "available")
}

func TestTruncateText(t *testing.T) {
	require.Equal(t, "short", truncateText("short", 10))
	require.Equal(t, "abcd…", truncateText("abcdefgh", 5))
	require.Equal(t, "héll…", truncateText("héllo wörld", 5))
}

func TestConfirm(t *testing.T) {
	var prompt bytes.Buffer
	require.True(t, confirm(strings.NewReader("y\n"), &prompt, "Delete? "))
	require.Equal(t, "Delete? ", prompt.String())
	require.True(t, confirm(strings.NewReader("YES\n"), io.Discard, ""))
	require.False(t, confirm(strings.NewReader("\n"), io.Discard, ""))
	require.False(t, confirm(strings.NewReader(""), io.Discard, ""))
}

func TestPrintProfile(t *testing.T) {
	p := model.OrganisationProfile{
		Name:          "Acme",
		BusinessEmail: "ops@acme.io",
		PlanTier:      "Starter",
		PlanStatus:    "Trial",
		Usage:         model.Usage{CampaignsUsed: 3, CampaignsLimit: 10, Contacts: 1250, EmailsThisMonth: 48000},
	}
	var out bytes.Buffer
	printProfile(&out, p)
	got := out.String()
	require.Contains(t, got, "Acme")
	require.Contains(t, got, "Website:  N/A")
	require.Contains(t, got, "Joined:   N/A")
	require.Contains(t, got, "Contacts  1,250")
	require.Contains(t, got, "48,000 this month")
	require.Contains(t, got, "(30%)")
}

func newChat(t *testing.T, productID string) (*mockapi.Server, *transcript.Assembler) {
	t.Helper()
	mock := mockapi.New(mockapi.Options{Products: 3}, zerolog.Nop())
	ts := httptest.NewServer(mock.Handler())
	t.Cleanup(ts.Close)

	client, err := gateway.New(ts.URL+"/api", staticToken(mock.IssueToken(mockapi.DemoEmail)))
	require.NoError(t, err)
	api := gateway.NewAPI(client)

	a, err := transcript.New(transcript.Config{ProductID: productID, Streamer: api, Confirmer: api})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return mock, a
}

func TestChatLoop_RewriteAndSend(t *testing.T) {
	mock, a := newChat(t, "1")
	var out bytes.Buffer
	in := strings.NewReader("/send\nmake it   pop\n\n/send\n/quit\nignored\n")

	require.NoError(t, chatLoop(context.Background(), a, in, &out))

	got := out.String()
	require.Contains(t, got, "Nothing to send yet.")
	require.Contains(t, got, "assistant: "+mockapi.RewritePrefix+"make it pop\n")
	require.Contains(t, got, transcript.SentNotice)
	require.NotContains(t, got, "ignored")

	sent, ok := mock.Sent("1")
	require.True(t, ok)
	require.Equal(t, mockapi.RewritePrefix+"make it pop", sent)
	require.Empty(t, a.Final())
}

func TestChatLoop_CancelledContext(t *testing.T) {
	_, a := newChat(t, "1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pr, pw := io.Pipe()
	defer pw.Close()
	require.NoError(t, chatLoop(ctx, a, pr, io.Discard))
}

func TestChatOnce(t *testing.T) {
	mock, a := newChat(t, "2")
	res, err := chatOnce(context.Background(), a, "2", "hello there", true)
	require.NoError(t, err)
	require.Equal(t, "2", res.ProductID)
	require.Equal(t, mockapi.RewritePrefix+"hello there", res.Final)
	require.True(t, res.Sent)
	require.Equal(t, "sent", res.Status)

	_, ok := mock.Sent("2")
	require.True(t, ok)
}

func TestErrLocked(t *testing.T) {
	require.Contains(t, errLocked{days: 4}.Error(), "4 days")
}

var testNow = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
