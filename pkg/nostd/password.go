package nostd

import (
	"golang.org/x/crypto/bcrypt"
)

// BcryptEncode 生成口令散列
func BcryptEncode(password []byte) ([]byte, error) {
	return bcrypt.GenerateFromPassword(password, bcrypt.DefaultCost)
}

// BcryptMatch 校验口令与散列是否匹配，不匹配时返回错误
func BcryptMatch(hashedPassword, password []byte) error {
	return bcrypt.CompareHashAndPassword(hashedPassword, password)
}
