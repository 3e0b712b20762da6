package xe

import "github.com/go-orz/orz"

var (
	ErrInvalidParams     = orz.NewError(10400, "参数无效")
	ErrInvalidToken      = orz.NewError(10403, "令牌无效")
	ErrPermissionDenied  = orz.NewError(10401, "您没有权限查看/修改/删除此数据")
	ErrIncorrectPassword = orz.NewError(10001, "账户或密码错误")
	ErrAlreadyInstalled  = orz.NewError(10002, "系统已初始化")

	ErrSettingsNotFound   = orz.NewError(10100, "策略配置不存在")
	ErrCredentialNotFound = orz.NewError(10101, "交易所凭据不存在")
	ErrSettingsInUse      = orz.NewError(10102, "策略仍有进行中的回合，请先停用并等待回合结束")
	ErrCredentialInUse    = orz.NewError(10103, "凭据仍被策略引用")
	ErrPairNotSupported   = orz.NewError(10104, "交易所不支持该交易对")
)
