package service

import (
	"fmt"

	"github.com/d60-Lab/community-messaging/internal/model"
)

// IDSet 预先加载好的用户 ID 集合，nil 视为空集
type IDSet map[string]struct{}

func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s[id]
	return ok
}

// BlockIndex blocker -> 被其屏蔽的用户集合
type BlockIndex map[string]IDSet

// IndexBlocks 把屏蔽记录整理成索引
func IndexBlocks(rows []*model.Block) BlockIndex {
	idx := make(BlockIndex)
	for _, b := range rows {
		idx.Add(b.BlockerID, b.BlockedID)
	}
	return idx
}

func (idx BlockIndex) Add(blockerID, blockedID string) {
	set, ok := idx[blockerID]
	if !ok {
		set = make(IDSet)
		idx[blockerID] = set
	}
	set[blockedID] = struct{}{}
}

// Of 返回 blockerID 的屏蔽集合，不存在时为 nil
func (idx BlockIndex) Of(blockerID string) IDSet { return idx[blockerID] }

// CanSend 任一方屏蔽了另一方就不能发送
func CanSend(senderBlocks, recipientBlocks IDSet, senderID, recipientID string) bool {
	return !senderBlocks.Has(recipientID) && !recipientBlocks.Has(senderID)
}

// BlockedEitherWay myBlocks 是我屏蔽的人，blockedMe 是屏蔽了我的人
func BlockedEitherWay(myBlocks, blockedMe IDSet, peerID string) bool {
	return myBlocks.Has(peerID) || blockedMe.Has(peerID)
}

// ValidateBlock 不允许屏蔽自己
func ValidateBlock(blockerID, blockedID string) error {
	if blockerID == blockedID {
		return fmt.Errorf("%w: cannot block yourself", ErrInvalidArgument)
	}
	return nil
}
