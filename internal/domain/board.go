package domain

import "time"

// ImageKind 区分画板上两类持久化图像。
type ImageKind string

const (
	ImageKindBase    ImageKind = "base"    // 已归档记录折叠成的基底图
	ImageKindPreview ImageKind = "preview" // 缩放后的频道预览图
)

// Board 表示一个频道内的画板。BaseImage 是所有已归档记录折叠后的栅格，
// 只会被整体替换，绝不原地合并：重新生成总是由（旧基底 + 上次折叠之后
// 归档的记录）产生一张新图，并原子替换旧图。
type Board struct {
	ID           uint   `gorm:"primaryKey" json:"-"`
	ChannelID    string `gorm:"size:64;index:idx_board_key,unique;not null" json:"channelId"`
	BoardID      string `gorm:"size:64;index:idx_board_key,unique;not null" json:"boardId"`
	BaseImage    []byte `gorm:"type:mediumblob" json:"-"`
	PreviewImage []byte `gorm:"type:mediumblob" json:"-"`
	// FoldedSeq 是已折叠进 BaseImage 的最大记录序号（折叠水位线）。
	// 重新生成任务只需处理 Seq 大于该值的归档记录。
	FoldedSeq uint64    `gorm:"not null;default:0" json:"foldedSeq"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// BoardSnapshot 是客户端重建当前画布所需的全部数据：
// 基底图加上按 (CreatedAt, Seq) 升序排列的 ACTIVE 未归档记录。
type BoardSnapshot struct {
	Board   *Board       `json:"board"`
	Records []DrawRecord `json:"records"`
}
