package tool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	smithy "github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palette/internal/domain"
	"palette/internal/knowledge"
)

func in(s string) map[string]any { return map[string]any{InputKey: s} }

func TestWeatherTool(t *testing.T) {
	w := NewWeatherTool()
	cases := map[string]string{
		"Monday":     "10",
		"tuesday":    "12",
		"Wednesday":  "13",
		" THURSDAY ": "14",
		"'Friday'":   "16",
		"Saturday.":  "18",
		`"Sunday"`:   "20",
	}
	for input, want := range cases {
		got, err := w.Execute(context.Background(), in(input))
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	got, err := w.Execute(context.Background(), in("Someday"))
	require.NoError(t, err)
	assert.Contains(t, got, "is not a weekday")
}

func TestCalendarTools(t *testing.T) {
	fixed := func() time.Time { return time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC) }

	date, err := NewTodayDateTool(fixed).Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", date)

	day, err := NewTodayWeekdayTool(fixed).Execute(context.Background(), in("anything"))
	require.NoError(t, err)
	assert.Equal(t, "Friday", day)

	day, err = NewWeekdayOfDateTool().Execute(context.Background(), in("2024-03-20"))
	require.NoError(t, err)
	assert.Equal(t, "Wednesday", day)

	_, err = NewWeekdayOfDateTool().Execute(context.Background(), in("20/03/2024"))
	assert.Error(t, err)
}

type stubRetriever struct {
	gotIndex string
	gotK     int
	docs     []domain.Document
	err      error
}

func (s *stubRetriever) Search(ctx context.Context, indexID, query string, k int) ([]domain.Document, error) {
	s.gotIndex, s.gotK = indexID, k
	return s.docs, s.err
}

func TestRetrieverTool(t *testing.T) {
	r := &stubRetriever{docs: []domain.Document{
		{PageContent: "CEI pays partners", Metadata: map[string]any{"source": "cei.md"}},
		{PageContent: "for engagement", Metadata: map[string]any{"source": "cei.md"}},
	}}
	tl := NewRetrieverTool(RetrieverConfig{Name: CEIToolName, Description: CEIToolDesc, IndexID: "idx", Retriever: r})

	v, err := tl.Invoke(context.Background(), in("what is CEI"))
	require.NoError(t, err)
	assert.Len(t, v, 2)
	assert.Equal(t, "idx", r.gotIndex)
	assert.Equal(t, 3, r.gotK)

	text, err := tl.Execute(context.Background(), in("what is CEI"))
	require.NoError(t, err)
	assert.Equal(t, "CEI pays partners\n\nfor engagement", text)

	_, err = tl.Execute(context.Background(), in("  "))
	assert.Error(t, err)

	r.err = errors.New("index offline")
	_, err = tl.Invoke(context.Background(), in("q"))
	assert.ErrorContains(t, err, "index offline")
}

func TestDocumentReader(t *testing.T) {
	att, err := NewAttachments(AttachmentsConfig{Dir: t.TempDir(), Logger: testLogger()})
	require.NoError(t, err)

	name, err := att.Store("telegram:42", "notes.txt", strings.NewReader("meeting at noon"))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", name)
	_, err = att.Store("telegram:42", "data.bin", strings.NewReader("\x00\x01\xff\xfe"))
	require.NoError(t, err)

	single := NewDocumentReaderTool(att, "telegram:42", []string{"notes.txt"})
	got, err := single.Execute(context.Background(), in(""))
	require.NoError(t, err)
	assert.Equal(t, "meeting at noon", got)

	both := NewDocumentReaderTool(att, "telegram:42", []string{"notes.txt", "data.bin"})
	got, err = both.Execute(context.Background(), in(""))
	require.NoError(t, err)
	assert.Contains(t, got, "Several documents")

	got, err = both.Execute(context.Background(), in("data.bin"))
	require.NoError(t, err)
	assert.Contains(t, got, "[Binary file: data.bin")

	got, err = single.Execute(context.Background(), in("data.bin"))
	require.NoError(t, err)
	assert.Contains(t, got, "is not uploaded")

	none := NewDocumentReaderTool(att, "other", nil)
	got, err = none.Execute(context.Background(), in("notes.txt"))
	require.NoError(t, err)
	assert.Contains(t, got, "No documents")
}

func TestAttachments_RejectsOversizeAndTraversal(t *testing.T) {
	dir := t.TempDir()
	att, err := NewAttachments(AttachmentsConfig{Dir: dir, MaxSizeBytes: 4, Logger: testLogger()})
	require.NoError(t, err)

	_, err = att.Store("s", "big.txt", strings.NewReader("too large"))
	assert.ErrorContains(t, err, "too large")
	_, statErr := os.Stat(filepath.Join(dir, "s", "big.txt"))
	assert.True(t, os.IsNotExist(statErr))

	name, err := att.Store("../escape", "../../x.txt", strings.NewReader("ok"))
	require.NoError(t, err)
	assert.Equal(t, "x.txt", name)
	_, err = os.Stat(filepath.Join(dir, sessionDirName("../escape"), "x.txt"))
	assert.NoError(t, err)
}

func TestYouTubeSearch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		fmt.Fprint(w, `{"videoId":"aaaaaaaaaaa"},{"videoId":"aaaaaaaaaaa"},{"videoId":"bbbbbbbbbbb"},{"videoId":"ccccccccccc"}`)
	}))
	defer srv.Close()

	yt := NewYouTubeSearchTool(srv.Client(), 2)
	yt.baseURL = srv.URL

	got, err := yt.Execute(context.Background(), in("lex fridman,3"))
	require.NoError(t, err)
	assert.Equal(t, "lex fridman", gotQuery)
	assert.Equal(t, "['https://www.youtube.com/watch?v=aaaaaaaaaaa', 'https://www.youtube.com/watch?v=bbbbbbbbbbb', 'https://www.youtube.com/watch?v=ccccccccccc']", got)

	got, err = yt.Execute(context.Background(), in("lex fridman"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(got, "watch?v="))
}

func TestParseSearchInput(t *testing.T) {
	q, n := parseSearchInput("cats, 5", 2)
	assert.Equal(t, "cats", q)
	assert.Equal(t, 5, n)

	q, n = parseSearchInput("cats,lots", 2)
	assert.Equal(t, "cats", q)
	assert.Equal(t, 2, n)
}

const atomFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <published>2017-06-12T17:57:34Z</published>
    <title>Attention Is All
      You Need</title>
    <summary>  The dominant sequence transduction models ...  </summary>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
  </entry>
</feed>`

func TestArxivTool(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		io.WriteString(w, atomFixture)
	}))
	defer srv.Close()

	got, err := NewArxivTool(srv.Client(), srv.URL, 1).Execute(context.Background(), in("attention"))
	require.NoError(t, err)
	assert.Equal(t, "all:attention", gotQuery.Get("search_query"))
	assert.Equal(t, "1", gotQuery.Get("max_results"))
	assert.Equal(t, "Published: 2017-06-12\nTitle: Attention Is All You Need\nAuthors: Ashish Vaswani, Noam Shazeer\nSummary: The dominant sequence transduction models ...", got)
}

type fakeEC2 struct {
	stopped []string
}

func (f *fakeEC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if aws.ToString(in.NextToken) == "" {
		return &ec2.DescribeInstancesOutput{
			Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{{
				InstanceId:   aws.String("i-0abc"),
				InstanceType: ec2types.InstanceTypeT3Micro,
				State:        &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
				Tags: []ec2types.Tag{
					{Key: aws.String("env"), Value: aws.String("dev")},
					{Key: aws.String("Name"), Value: aws.String("web")},
				},
			}}}},
			NextToken: aws.String("page2"),
		}, nil
	}
	return &ec2.DescribeInstancesOutput{
		Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{{
			InstanceId:   aws.String("i-0def"),
			InstanceType: ec2types.InstanceTypeT3Small,
			State:        &ec2types.InstanceState{Name: ec2types.InstanceStateNameStopped},
		}}}},
	}, nil
}

func (f *fakeEC2) StartInstances(context.Context, *ec2.StartInstancesInput, ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error) {
	return nil, &smithy.GenericAPIError{Code: "UnauthorizedOperation", Message: "denied"}
}

func (f *fakeEC2) StopInstances(_ context.Context, in *ec2.StopInstancesInput, _ ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
	f.stopped = append(f.stopped, in.InstanceIds...)
	return &ec2.StopInstancesOutput{StoppingInstances: []ec2types.InstanceStateChange{{
		InstanceId:    aws.String(in.InstanceIds[0]),
		PreviousState: &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
		CurrentState:  &ec2types.InstanceState{Name: ec2types.InstanceStateNameStopping},
	}}}, nil
}

func TestEC2Tools(t *testing.T) {
	api := &fakeEC2{}
	ec2 := NewEC2(api)

	v, err := NewListEC2InstancesTool(ec2).Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []Instance{
		{ID: "i-0abc", State: "running", Type: "t3.micro", Name: "web"},
		{ID: "i-0def", State: "stopped", Type: "t3.small"},
	}, v)

	got, err := NewStopEC2InstanceTool(ec2).Execute(context.Background(), in("i-0abc"))
	require.NoError(t, err)
	assert.Equal(t, "Instance i-0abc: running -> stopping", got)
	assert.Equal(t, []string{"i-0abc"}, api.stopped)

	_, err = NewStartEC2InstanceTool(ec2).Execute(context.Background(), in("i-0abc"))
	assert.ErrorContains(t, err, "UnauthorizedOperation")

	_, err = NewStartEC2InstanceTool(ec2).Execute(context.Background(), in("web"))
	assert.ErrorContains(t, err, "not an EC2 instance id")
}

func TestToolset_PrivilegedToolsOnlyWhenPrivileged(t *testing.T) {
	ec2 := NewEC2(&fakeEC2{})
	base := ToolsetConfig{
		Retriever:      &stubRetriever{},
		EmbeddingModel: "CSDC",
		K:              3,
		EC2:            ec2,
		Logger:         testLogger(),
	}

	plain := NewToolset(base)
	for _, n := range PrivilegedToolNames {
		assert.Nil(t, plain.Get(n), n)
	}
	assert.Equal(t, []string{
		CEIToolName, DTHToolName, "Weather Tool", "Return Date of Today Tool",
		"Return Weekday of Today Tool", "Return Weekday of Date Tool", "youtube_search", "arxiv",
	}, plain.Names())

	base.Privileged = true
	admin := NewToolset(base)
	for _, n := range PrivilegedToolNames {
		assert.NotNil(t, admin.Get(n), n)
	}
	assert.Equal(t, plain.Len()+len(PrivilegedToolNames), admin.Len())

	cei := admin.Get(CEIToolName).(*RetrieverTool)
	assert.Equal(t, knowledge.IndexName("cei", "CSDC"), cei.IndexID())
}
