package model

import "github.com/golang-jwt/jwt"

type UserClaims struct {
	UserName string `json:"userName"`
	Plan     string `json:"plan,omitempty"`
	jwt.StandardClaims
}
