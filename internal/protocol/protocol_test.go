package protocol

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/filesync/internal/domain"
)

func TestRequestRoundTrip(t *testing.T) {
	tests := []Request{
		{Type: RequestIndex, RemoteName: "docs"},
		{Type: RequestFile, RemoteName: "docs", Filepath: "sub/notes.txt"},
	}
	for _, want := range tests {
		t.Run(want.Type.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteRequest(&buf, want))

			got, err := ReadRequest(&buf)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestWriteRequestIndexOmitsFilepath(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRequest(&buf, Request{Type: RequestIndex, RemoteName: "docs"}))
	assert.JSONEq(t, `{"request_type":0,"remote_name":"docs"}`, buf.String())
}

func TestReadRequestRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", "hello"},
		{"truncated", `{"request_type": 0, "remote_na`},
		{"missing request_type", `{"remote_name": "docs"}`},
		{"missing remote_name", `{"request_type": 0}`},
		{"empty remote_name", `{"request_type": 0, "remote_name": ""}`},
		{"file without filepath", `{"request_type": 1, "remote_name": "docs"}`},
		{"unknown type", `{"request_type": 7, "remote_name": "docs"}`},
		{"string type", `{"request_type": "0", "remote_name": "docs"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadRequest(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, domain.ErrProtocol)
		})
	}
}

// Requests from older peers carry spaces and no trailing newline
func TestReadRequestLegacyFormatting(t *testing.T) {
	req, err := ReadRequest(strings.NewReader(`{"request_type": 1, "remote_name": "docs", "filepath": "a.txt"}`))
	require.NoError(t, err)
	assert.Equal(t, Request{Type: RequestFile, RemoteName: "docs", Filepath: "a.txt"}, req)
}

func TestHeaderThenPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, 5))
	buf.WriteString("hello")

	r := bufio.NewReader(&buf)
	size, err := ReadHeader(r)
	require.NoError(t, err)
	require.Equal(t, int64(5), size)

	payload, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(payload))
}

func TestReadHeader(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantEOF bool
		wantErr bool
	}{
		{name: "compact", input: `{"response_size":12}`, want: 12},
		{name: "spaced", input: `{"response_size": 0}`, want: 0},
		{name: "closed before header", input: "", wantEOF: true},
		{name: "truncated", input: `{"response_size": 1`, wantErr: true},
		{name: "not an integer", input: `{"response_size": 1.5}`, wantErr: true},
		{name: "negative", input: `{"response_size": -3}`, wantErr: true},
		{name: "missing field", input: `{"size": 3}`, wantErr: true},
		{name: "garbage", input: `not json}`, wantErr: true},
		{name: "too long", input: "{" + strings.Repeat(" ", 100) + "}", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadHeader(bufio.NewReader(strings.NewReader(tt.input)))
			switch {
			case tt.wantEOF:
				assert.ErrorIs(t, err, io.EOF)
				assert.NotErrorIs(t, err, domain.ErrProtocol)
			case tt.wantErr:
				assert.ErrorIs(t, err, domain.ErrProtocol)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	snap := domain.Snapshot{
		"notes.txt":     {Hash: "9e107d9d372bb6826bd81d3542a419d6", LastModified: 1709294400.123456},
		"sub/image.png": {Hash: "e4d909c290d0fb1ca068ffaddf22cbd0", LastModified: 1},
	}

	data, err := EncodeSnapshot(snap)
	require.NoError(t, err)

	got, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestEncodeSnapshotWireKeys(t *testing.T) {
	data, err := EncodeSnapshot(domain.Snapshot{"a": {Hash: "ff", LastModified: 2.5}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":{"md5sum":"ff","last_modified":2.5}}`, string(data))

	empty, err := EncodeSnapshot(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(empty))
}

func TestDecodeSnapshotNormalizesPaths(t *testing.T) {
	got, err := DecodeSnapshot([]byte(`{"sub\\b.txt":{"md5sum":"aa","last_modified":1}}`))
	require.NoError(t, err)
	assert.Contains(t, got, "sub/b.txt")
}

func TestDecodeSnapshotRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `[1, 2]`},
		{"escaping path", `{"../etc/passwd":{"md5sum":"aa","last_modified":1}}`},
		{"absolute path", `{"/etc/passwd":{"md5sum":"aa","last_modified":1}}`},
		{"duplicate after cleaning", `{"a/b":{"md5sum":"aa","last_modified":1},"a//b":{"md5sum":"bb","last_modified":2}}`},
		{"missing digest", `{"a":{"last_modified":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSnapshot([]byte(tt.input))
			assert.ErrorIs(t, err, domain.ErrProtocol)
		})
	}
}
