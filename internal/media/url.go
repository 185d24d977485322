// Package media 处理头像等媒体地址的展示形式
package media

import "strings"

// Normalizer 把数据库中保存的头像值转换成前端可直接使用的地址
type Normalizer struct {
	routePrefix   string
	defaultAvatar string
}

func NewNormalizer(routePrefix, defaultAvatar string) Normalizer {
	if !strings.HasSuffix(routePrefix, "/") {
		routePrefix += "/"
	}
	return Normalizer{routePrefix: routePrefix, defaultAvatar: defaultAvatar}
}

// AvatarURL 空值返回默认头像；http(s) 绝对地址原样返回；其余视为文件名，加上路由前缀
func (n Normalizer) AvatarURL(stored string) string {
	stored = strings.TrimSpace(stored)
	if stored == "" {
		return n.defaultAvatar
	}
	if strings.HasPrefix(stored, "http://") || strings.HasPrefix(stored, "https://") {
		return stored
	}
	return n.routePrefix + strings.TrimLeft(stored, "/")
}
