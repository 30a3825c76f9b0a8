package models

// All 回傳所有需要建立資料表的模型，依照外鍵相依順序排列
func All() []any {
	return []any{
		&User{},
		&SsoProvider{},
		&UserIdentity{},
		&Image{},
		&UserImage{},
		&GenerationRequest{},
	}
}
