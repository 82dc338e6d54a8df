package e2e

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type DirectMessageSuite struct {
	BaseSuite
}

func TestDirectMessageSuite(t *testing.T) {
	suite.Run(t, new(DirectMessageSuite))
}

type account struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

func (s *DirectMessageSuite) createAccount(t *testing.T) account {
	username := "u" + uuid.NewString()[:8]
	password := "E2ePassword123!"

	resp := s.PostJSON(t, "/api/register", map[string]string{
		"username": username, "password": password,
	}, nil)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	var acc account
	resp = s.PostJSON(t, "/api/login", map[string]string{
		"username": username, "password": password,
	}, &acc)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().NotEmpty(acc.Token)
	return acc
}

// TestOfflineDeliveryScenario covers the full loop: alice messages an
// offline bob, bob connects later and receives the replay.
func (s *DirectMessageSuite) TestOfflineDeliveryScenario() {
	t := s.T()
	s.Header(t, "offline delivery")

	alice := s.createAccount(t)
	bob := s.createAccount(t)

	// alice online
	aliceWS := s.Dial(t)
	s.Emit(aliceWS, "register", alice.UserID)
	s.WaitFor(t, aliceWS, "userList")

	// alice sends while bob is offline
	s.Emit(aliceWS, "sendMessage", map[string]string{
		"senderId":    alice.UserID,
		"recipientId": bob.UserID,
		"content":     "hi",
	})
	ack := s.WaitFor(t, aliceWS, "messageSent")

	var sent struct {
		Content string `json:"content"`
	}
	s.Require().NoError(json.Unmarshal(ack.Data, &sent))
	s.Require().Equal("hi", sent.Content)

	// bob connects and gets the pending message replayed
	bobWS := s.Dial(t)
	s.Emit(bobWS, "register", bob.UserID)
	replayed := s.WaitFor(t, bobWS, "receiveMessage")

	var received struct {
		SenderID string `json:"senderId"`
		Content  string `json:"content"`
	}
	s.Require().NoError(json.Unmarshal(replayed.Data, &received))
	s.Require().Equal(alice.UserID, received.SenderID)
	s.Require().Equal("hi", received.Content)

	// alice sees bob come online
	env := s.WaitFor(t, aliceWS, "userList")
	var online []string
	s.Require().NoError(json.Unmarshal(env.Data, &online))
	s.Require().Contains(online, bob.UserID)
}

// TestDisconnectBroadcast verifies presence teardown reaches the peers.
func (s *DirectMessageSuite) TestDisconnectBroadcast() {
	t := s.T()
	s.Header(t, "disconnect broadcast")

	alice := s.createAccount(t)
	bob := s.createAccount(t)

	aliceWS := s.Dial(t)
	s.Emit(aliceWS, "register", alice.UserID)
	s.WaitFor(t, aliceWS, "userList")

	bobWS := s.Dial(t)
	s.Emit(bobWS, "register", bob.UserID)
	s.WaitFor(t, bobWS, "userList")

	s.Require().NoError(bobWS.Close())

	env := s.WaitFor(t, aliceWS, "userDisconnected")
	var gone string
	s.Require().NoError(json.Unmarshal(env.Data, &gone))
	s.Require().Equal(bob.UserID, gone)
}

// TestImpersonationRejected verifies the sender identity binding.
func (s *DirectMessageSuite) TestImpersonationRejected() {
	t := s.T()
	s.Header(t, "impersonation rejected")

	alice := s.createAccount(t)
	bob := s.createAccount(t)

	aliceWS := s.Dial(t)
	s.Emit(aliceWS, "register", alice.UserID)
	s.WaitFor(t, aliceWS, "userList")

	s.Emit(aliceWS, "sendMessage", map[string]string{
		"senderId":    bob.UserID,
		"recipientId": alice.UserID,
		"content":     "forged",
	})
	s.WaitFor(t, aliceWS, "error")
}
