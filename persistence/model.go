package persistence

//UserRecord is the profile and product posting stored for a single user.
//UserID is the identity provider's id and the only key.
type UserRecord struct {
	UserID             string `json:"userID" bson:"_id"`
	FirstName          string `json:"firstName" bson:"first_name"`
	LastName           string `json:"lastName" bson:"last_name"`
	Username           string `json:"username" bson:"username"`
	Email              string `json:"email" bson:"email"`
	Gender             string `json:"gender" bson:"gender"`
	Location           string `json:"location" bson:"location"`
	ProductName        string `json:"productName" bson:"product_name"`
	ProductDescription string `json:"productDescription" bson:"product_description"`
	ProductPicture     []byte `json:"productPicture,omitempty" bson:"product_picture,omitempty"`
	TradeRequest       string `json:"tradeRequest" bson:"trade_request"`
}

//WithProduct returns a copy of the record with only the product fields replaced
func (ur UserRecord) WithProduct(name, description, tradeRequest string, picture []byte) UserRecord {
	ur.ProductName = name
	ur.ProductDescription = description
	ur.TradeRequest = tradeRequest
	if picture != nil {
		ur.ProductPicture = picture
	}
	return ur
}

//WithProfile returns a copy of the record with only the profile fields replaced
func (ur UserRecord) WithProfile(profile UserRecord) UserRecord {
	ur.FirstName = profile.FirstName
	ur.LastName = profile.LastName
	ur.Username = profile.Username
	ur.Email = profile.Email
	ur.Gender = profile.Gender
	ur.Location = profile.Location
	return ur
}
