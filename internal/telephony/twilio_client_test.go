package telephony

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeCallUpdater struct {
	sid   string
	twiml string
	err   error
}

func (f *fakeCallUpdater) UpdateCall(sid string, params *twilioapi.UpdateCallParams) (*twilioapi.ApiV2010Call, error) {
	f.sid = sid
	if params.Twiml != nil {
		f.twiml = *params.Twiml
	}
	if f.err != nil {
		return nil, f.err
	}
	return &twilioapi.ApiV2010Call{Sid: &sid}, nil
}

func TestNewTwilioClient_RequiresCredentials(t *testing.T) {
	_, err := NewTwilioClient(TwilioClientConfig{AccountSID: "AC123"})
	assert.Error(t, err)

	client, err := NewTwilioClient(TwilioClientConfig{AccountSID: "AC123", AuthToken: "secret"})
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestTwilioClient_Transfer(t *testing.T) {
	api := &fakeCallUpdater{}
	client := newTwilioClient(api, TwilioClientConfig{TransferMessage: "Connecting you now."})

	res := client.Transfer(context.Background(), "CA1", "+13057013979")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "CA1", api.sid)
	assert.Contains(t, api.twiml, "<Say")
	assert.Contains(t, api.twiml, `voice="Polly.Amy"`)
	assert.Contains(t, api.twiml, "Connecting you now.")
	assert.Contains(t, api.twiml, "<Dial>+13057013979</Dial>")
	assert.Less(t, strings.Index(api.twiml, "<Say"), strings.Index(api.twiml, "<Dial"))
}

func TestTwilioClient_TransferFailure(t *testing.T) {
	client := newTwilioClient(&fakeCallUpdater{err: errors.New("20404 not found")}, TwilioClientConfig{})
	res := client.Transfer(context.Background(), "CA1", "+1555")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "20404")

	assert.False(t, client.Transfer(context.Background(), "CA1", "").Success)
}

func TestTwilioClient_PlayAudio(t *testing.T) {
	api := &fakeCallUpdater{}
	cache := NewAudioCache(time.Minute)
	client := newTwilioClient(api, TwilioClientConfig{Audio: cache, AudioBaseURL: "https://relay.example.com/audio/"})

	res := client.PlayAudio(context.Background(), "CA1", []byte("mp3"))
	require.True(t, res.Success, res.Error)
	assert.Contains(t, api.twiml, "<Play>https://relay.example.com/audio/")

	start := strings.Index(api.twiml, "/audio/") + len("/audio/")
	end := strings.Index(api.twiml, ".mp3")
	audio, ok := cache.Get(api.twiml[start:end])
	require.True(t, ok)
	assert.Equal(t, []byte("mp3"), audio)
}

func TestTwilioClient_PlayAudioWithoutHosting(t *testing.T) {
	client := newTwilioClient(&fakeCallUpdater{}, TwilioClientConfig{})
	assert.False(t, client.PlayAudio(context.Background(), "CA1", []byte("mp3")).Success)
	assert.True(t, client.Answer(context.Background(), "CA1").Success)
}

func TestAudioCache_Expiry(t *testing.T) {
	cache := NewAudioCache(time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	id := cache.Put([]byte("a"))
	_, ok := cache.Get(id)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = cache.Get(id)
	assert.False(t, ok)

	cache.Put([]byte("b"))
	assert.Len(t, cache.clips, 1, "expired clips are evicted on put")
}
