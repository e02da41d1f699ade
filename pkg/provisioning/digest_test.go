package provisioning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedid/guestsync/pkg/mail"
)

func TestFailureDigest(t *testing.T) {
	t.Run("summarizes failures per application", func(t *testing.T) {
		store := &memFailureStore{}
		require.NoError(t, store.Create(context.Background(), &SCIMFailure{
			API: APIUsers, Method: "POST", URI: "https://wiki.example.org/scim/v2/Users",
			ApplicationID: 1, ApplicationName: "wiki",
		}))
		require.NoError(t, store.Create(context.Background(), &SCIMFailure{
			API: APIGroups, Method: "PUT", URI: "https://wiki.example.org/scim/v2/Groups/g-ed",
			ApplicationID: 1, ApplicationName: "wiki",
		}))
		require.NoError(t, store.Create(context.Background(), &SCIMFailure{
			API: APIUsers, Method: "DELETE", URI: "https://lms.example.org/scim/Users/m-3",
			ApplicationID: 2, ApplicationName: "lms",
		}))

		sender := mail.NewRecordingSender()
		digest := NewFailureDigest(store, sender, "operator@example.edu", testLogEntry())
		require.NoError(t, digest.Run(context.Background()))

		messages := sender.Messages()
		require.Len(t, messages, 1)
		assert.Equal(t, []string{"operator@example.edu"}, messages[0].To)
		assert.Contains(t, messages[0].Subject, "3 outstanding")
		assert.Contains(t, messages[0].Body, "Application wiki: 2 failure(s)")
		assert.Contains(t, messages[0].Body, "Application lms: 1 failure(s)")
	})

	t.Run("no mail without outstanding failures", func(t *testing.T) {
		sender := mail.NewRecordingSender()
		digest := NewFailureDigest(&memFailureStore{}, sender, "operator@example.edu", testLogEntry())
		require.NoError(t, digest.Run(context.Background()))
		assert.Empty(t, sender.Messages())
	})
}
