package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadLogoReplacesPreviousObject(t *testing.T) {
	st := newMemStore()
	seedTeams(st)
	uploader := &fakeUploader{}
	svc := NewTeamService(&fakeTeamRepo{st: st}, uploader, discardLogger()).(*teamService)
	svc.now = func() time.Time { return testNow }

	team, err := svc.UploadLogo(context.Background(), 1, strings.NewReader("png"), "image/png")
	require.NoError(t, err)

	wantKey := "teams/1/logo_1773489600.png"
	assert.Equal(t, []string{wantKey}, uploader.uploaded)
	assert.Equal(t, []string{"teams/1/logo_1.png"}, uploader.deleted)
	require.NotNil(t, team.LogoURL)
	assert.Equal(t, "https://cdn.test/"+wantKey, *team.LogoURL)
	assert.Equal(t, wantKey, *st.teams[1].LogoKey)
}

func TestUploadLogoErrors(t *testing.T) {
	st := newMemStore()
	seedTeams(st)

	disabled := NewTeamService(&fakeTeamRepo{st: st}, nil, discardLogger())
	_, err := disabled.UploadLogo(context.Background(), 1, strings.NewReader("x"), "image/png")
	assert.ErrorIs(t, err, ErrStorageDisabled)

	uploader := &fakeUploader{}
	svc := NewTeamService(&fakeTeamRepo{st: st}, uploader, discardLogger())

	_, err = svc.UploadLogo(context.Background(), 1, strings.NewReader("x"), "application/pdf")
	assert.ErrorIs(t, err, ErrInvalidFileType)

	_, err = svc.UploadLogo(context.Background(), 99, strings.NewReader("x"), "image/png")
	assert.ErrorIs(t, err, ErrTeamNotFound)

	uploader.failWith = errors.New("bucket unavailable")
	_, err = svc.UploadLogo(context.Background(), 2, strings.NewReader("x"), "image/webp")
	assert.ErrorContains(t, err, "bucket unavailable")
	assert.Nil(t, st.teams[2].LogoKey)
	assert.Empty(t, uploader.uploaded)
}

func TestGetTeamPopulatesLogoURL(t *testing.T) {
	st := newMemStore()
	seedTeams(st)
	svc := NewTeamService(&fakeTeamRepo{st: st}, &fakeUploader{}, discardLogger())

	team, err := svc.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, team.LogoURL)

	team, err = svc.GetByID(context.Background(), 2)
	require.NoError(t, err)
	assert.Nil(t, team.LogoURL)
}
