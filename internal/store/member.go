package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/komandorr/komandorr-server/internal/domain"
)

const (
	memberPrefix         = "member:"
	memberByInvitePrefix = "idx:members:invite:" // For listing an invite's redemptions
	memberByPlexPrefix   = "idx:members:plex:"   // For duplicate redemption checks
)

// ErrMemberNotFound is returned when a member cannot be found.
var ErrMemberNotFound = errors.New("member not found")

// memberPlexKey indexes a member by (invite, plex user). One redemption
// per account per invite.
func memberPlexKey(inviteID, plexUserID string) []byte {
	return []byte(memberByPlexPrefix + inviteID + ":" + plexUserID)
}

// CreateMember records a provisioned account.
func (s *Store) CreateMember(_ context.Context, member *domain.Member) error {
	key := []byte(memberPrefix + member.ID)
	inviteKey := []byte(memberByInvitePrefix + member.InviteID + ":" + member.ID)
	plexKey := memberPlexKey(member.InviteID, member.PlexUserID)

	return s.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(member)
		if err != nil {
			return fmt.Errorf("marshal member: %w", err)
		}

		if err := txn.Set(key, data); err != nil {
			return err
		}

		if err := txn.Set(inviteKey, []byte{}); err != nil {
			return err
		}

		return txn.Set(plexKey, []byte(member.ID))
	})
}

// GetMember retrieves a member by ID.
func (s *Store) GetMember(_ context.Context, id string) (*domain.Member, error) {
	key := []byte(memberPrefix + id)

	var member domain.Member
	if err := s.get(key, &member); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("get member: %w", err)
	}

	return &member, nil
}

// GetMemberByInviteAndPlexID finds the member created when the given Plex
// account redeemed the given invite. Used to detect duplicate redemptions.
func (s *Store) GetMemberByInviteAndPlexID(ctx context.Context, inviteID, plexUserID string) (*domain.Member, error) {
	var memberID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(memberPlexKey(inviteID, plexUserID))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			memberID = string(val)
			return nil
		})
	})

	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("lookup member by plex id: %w", err)
	}

	return s.GetMember(ctx, memberID)
}

// ListMembers returns all members.
func (s *Store) ListMembers(_ context.Context) ([]*domain.Member, error) {
	prefix := []byte(memberPrefix)
	var members []*domain.Member

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var member domain.Member
				if unmarshalErr := json.Unmarshal(val, &member); unmarshalErr != nil {
					// Skip malformed members
					return nil
				}

				members = append(members, &member)
				return nil
			})
			if err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	return members, nil
}

// ListMembersByInvite returns all members provisioned through an invite.
func (s *Store) ListMembersByInvite(ctx context.Context, inviteID string) ([]*domain.Member, error) {
	prefix := []byte(memberByInvitePrefix + inviteID + ":")
	var members []*domain.Member

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false // We only need keys

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			// Key format: idx:members:invite:inviteID:memberID
			key := string(it.Item().Key())
			memberID := key[strings.LastIndex(key, ":")+1:]

			member, err := s.GetMember(ctx, memberID)
			if err != nil {
				if errors.Is(err, ErrMemberNotFound) {
					continue // Skip missing members
				}
				return err
			}

			members = append(members, member)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("list members by invite: %w", err)
	}

	return members, nil
}

// DeleteMembersByInvite removes all member records for an invite.
// Returns the deleted members so callers can revoke their Plex access.
func (s *Store) DeleteMembersByInvite(ctx context.Context, inviteID string) ([]*domain.Member, error) {
	members, err := s.ListMembersByInvite(ctx, inviteID)
	if err != nil {
		return nil, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, member := range members {
			if err := txn.Delete([]byte(memberPrefix + member.ID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Delete([]byte(memberByInvitePrefix + inviteID + ":" + member.ID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Delete(memberPlexKey(inviteID, member.PlexUserID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete members by invite: %w", err)
	}

	return members, nil
}
